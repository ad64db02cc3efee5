// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hub wraps a pubsub hub with the delivery guarantees the
// runtime relies on: a publisher observes completion of every
// subscriber callback, callbacks run in registration order, and a
// failing subscriber never prevents delivery to the subscribers
// registered after it.
package hub

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/pubsub/v2"
)

var logger = loggo.GetLogger("lingframe.hub")

// defaultDeliveryTimeout bounds how long a publisher will wait for
// subscribers. A stuck subscriber must not wedge lifecycle
// operations.
const defaultDeliveryTimeout = 30 * time.Second

// Handler receives a published event.
type Handler func(topic string, data interface{})

type subscription struct {
	id      uint64
	handler Handler
}

// Hub is the runtime's event bus. Handlers for a topic are kept in
// one ordered list behind a single pubsub subscription, so delivery
// order follows registration order even though the underlying hub
// runs each of its subscribers independently.
type Hub struct {
	hub   *pubsub.SimpleHub
	clock clock.Clock

	mu     sync.Mutex
	nextID uint64
	topics map[string][]subscription
}

// New returns a hub using the supplied clock for delivery deadlines.
func New(clk clock.Clock) (*Hub, error) {
	if clk == nil {
		return nil, errors.NotValidf("nil clock")
	}
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: logger,
		}),
		clock:  clk,
		topics: make(map[string][]subscription),
	}, nil
}

// Subscribe registers handler for the topic and returns an
// unsubscribe function.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[topic]; !ok {
		// First subscriber for the topic: hook the dispatcher into
		// the underlying hub. The subscription is kept for the hub's
		// lifetime; an empty handler list just means nothing to do.
		h.hub.Subscribe(topic, h.dispatch)
	}
	h.nextID++
	id := h.nextID
	h.topics[topic] = append(h.topics[topic], subscription{id: id, handler: handler})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.topics[topic]
		for i, s := range subs {
			if s.id == id {
				h.topics[topic] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// dispatch fans an event out to the topic's handlers in registration
// order. Each handler is recover-wrapped: a panic is logged and
// swallowed so later handlers and the publisher are unaffected.
func (h *Hub) dispatch(topic string, data interface{}) {
	h.mu.Lock()
	subs := make([]subscription, len(h.topics[topic]))
	copy(subs, h.topics[topic])
	h.mu.Unlock()
	for _, s := range subs {
		h.deliver(topic, data, s.handler)
	}
}

func (h *Hub) deliver(topic string, data interface{}, handler Handler) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("subscriber for %q panicked: %v", topic, r)
		}
	}()
	handler(topic, data)
}

// Publish delivers data to every subscriber of the topic and returns
// once all of them have handled it (or the delivery timeout passes).
func (h *Hub) Publish(topic string, data interface{}) {
	wait := h.hub.Publish(topic, data)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-h.clock.After(defaultDeliveryTimeout):
		logger.Warningf("timed out waiting for subscribers of %q", topic)
	}
}
