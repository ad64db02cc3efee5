// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hub_test

import (
	"sync"

	"github.com/juju/clock"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/lingframe/lingframe/internal/hub"
)

type HubSuite struct {
	jujutesting.IsolationSuite
}

var _ = gc.Suite(&HubSuite{})

func newHub(c *gc.C) *hub.Hub {
	h, err := hub.New(clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)
	return h
}

func (s *HubSuite) TestNewRequiresClock(c *gc.C) {
	h, err := hub.New(nil)
	c.Assert(err, gc.ErrorMatches, "nil clock not valid")
	c.Assert(h, gc.IsNil)
}

func (s *HubSuite) TestPublishWaitsForSubscriber(c *gc.C) {
	h := newHub(c)
	var mu sync.Mutex
	var got []interface{}
	unsub := h.Subscribe("topic", func(topic string, data interface{}) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, data)
	})
	defer unsub()

	h.Publish("topic", "payload")

	// Publish returned, so the handler has already run.
	mu.Lock()
	defer mu.Unlock()
	c.Assert(got, gc.DeepEquals, []interface{}{"payload"})
}

func (s *HubSuite) TestDeliveryInRegistrationOrder(c *gc.C) {
	h := newHub(c)
	var mu sync.Mutex
	var order []string
	record := func(name string) hub.Handler {
		return func(string, interface{}) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	defer h.Subscribe("topic", record("first"))()
	defer h.Subscribe("topic", record("second"))()
	defer h.Subscribe("topic", record("third"))()

	h.Publish("topic", nil)

	mu.Lock()
	defer mu.Unlock()
	c.Assert(order, gc.DeepEquals, []string{"first", "second", "third"})
}

func (s *HubSuite) TestPanickingSubscriberDoesNotStopDelivery(c *gc.C) {
	h := newHub(c)
	var mu sync.Mutex
	var delivered []string
	defer h.Subscribe("topic", func(string, interface{}) {
		panic("boom")
	})()
	defer h.Subscribe("topic", func(string, interface{}) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, "after")
	})()

	h.Publish("topic", nil)

	mu.Lock()
	defer mu.Unlock()
	c.Assert(delivered, gc.DeepEquals, []string{"after"})
}

func (s *HubSuite) TestUnsubscribe(c *gc.C) {
	h := newHub(c)
	var mu sync.Mutex
	count := 0
	unsub := h.Subscribe("topic", func(string, interface{}) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	h.Publish("topic", nil)
	unsub()
	h.Publish("topic", nil)

	mu.Lock()
	defer mu.Unlock()
	c.Assert(count, gc.Equals, 1)
}

func (s *HubSuite) TestIndependentTopics(c *gc.C) {
	h := newHub(c)
	var mu sync.Mutex
	var topics []string
	record := func(topic string, _ interface{}) {
		mu.Lock()
		defer mu.Unlock()
		topics = append(topics, topic)
	}
	defer h.Subscribe("one", record)()
	defer h.Subscribe("two", record)()

	h.Publish("one", nil)
	h.Publish("two", nil)

	mu.Lock()
	defer mu.Unlock()
	c.Assert(topics, gc.DeepEquals, []string{"one", "two"})
}
