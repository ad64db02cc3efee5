// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle_test

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/lingframe/lingframe/core/events"
	"github.com/lingframe/lingframe/core/invocation"
	"github.com/lingframe/lingframe/core/module"
	"github.com/lingframe/lingframe/internal/boundary"
	"github.com/lingframe/lingframe/internal/governance"
	"github.com/lingframe/lingframe/internal/hub"
	"github.com/lingframe/lingframe/internal/invoker"
	"github.com/lingframe/lingframe/internal/lifecycle"
	"github.com/lingframe/lingframe/internal/routing"
)

// fakeContainer stands in for a loaded module. Start and stop calls
// are counted so the tests can assert the lifecycle hooks fired.
type fakeContainer struct {
	mu       sync.Mutex
	started  int
	stopped  int
	startErr error
	services []string
}

func (f *fakeContainer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeContainer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeContainer) Lookup(name string) (interface{}, error) {
	return nil, errors.NotFoundf("bean %q", name)
}

func (f *fakeContainer) Services() []string {
	return f.services
}

func (f *fakeContainer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeContainer) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeFactory hands out containers per module id. The same services
// are exposed by every version of a module, which matches how an
// upgrade normally behaves.
type fakeFactory struct {
	mu         sync.Mutex
	createErr  error
	services   map[string][]string
	startErrs  map[string]error
	containers []*fakeContainer
	artifacts  []string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		services:  make(map[string][]string),
		startErrs: make(map[string]error),
	}
}

func (f *fakeFactory) Create(moduleID, artifact string, b *boundary.Boundary) (lifecycle.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	container := &fakeContainer{
		services: f.services[moduleID],
		startErr: f.startErrs[moduleID],
	}
	f.containers = append(f.containers, container)
	f.artifacts = append(f.artifacts, artifact)
	return container, nil
}

func (f *fakeFactory) lastContainer() *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.containers) == 0 {
		return nil
	}
	return f.containers[len(f.containers)-1]
}

// fakeServiceInvoker records what the pipeline dispatched and returns
// a canned result.
type fakeServiceInvoker struct {
	mu       sync.Mutex
	targets  []string
	services []string
	methods  []string
	result   interface{}
	err      error
}

func (f *fakeServiceInvoker) Invoke(ictx *invocation.Context, target invoker.Target, serviceID, method string, args []interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target.ModuleVersion())
	f.services = append(f.services, serviceID)
	f.methods = append(f.methods, method)
	return f.result, f.err
}

func (f *fakeServiceInvoker) calls() (targets, services, methods []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.targets...),
		append([]string(nil), f.services...),
		append([]string(nil), f.methods...)
}

// eventRecorder collects hub events; Publish waits for subscribers,
// so recording is synchronous with the operation under test.
type eventRecorder struct {
	mu     sync.Mutex
	topics []string
	bodies []interface{}
}

func (r *eventRecorder) record(topic string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.bodies = append(r.bodies, data)
}

func (r *eventRecorder) recorded() ([]string, []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...), append([]interface{}(nil), r.bodies...)
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = nil
	r.bodies = nil
}

type fixture struct {
	manager  *lifecycle.Manager
	factory  *fakeFactory
	engine   *governance.Engine
	router   *routing.CanaryRouter
	hub      *hub.Hub
	invoker  *fakeServiceInvoker
	recorder *eventRecorder
	sink     *governance.RecordingSink
}

func newFixture(c *gc.C) *fixture {
	h, err := hub.New(clock.WallClock)
	c.Assert(err, jc.ErrorIsNil)
	recorder := &eventRecorder{}
	for _, topic := range []string{
		events.InstanceUpgradingTopic,
		events.InstanceReadyTopic,
		events.InstanceDyingTopic,
		events.InstanceDestroyedTopic,
		events.RuntimeShuttingDownTopic,
		events.RuntimeShutdownTopic,
		events.InvocationRejectedTopic,
	} {
		h.Subscribe(topic, recorder.record)
	}

	sink := &governance.RecordingSink{}
	engine, err := governance.NewEngine(governance.EngineConfig{
		Clock: clock.WallClock,
		Sink:  sink,
	})
	c.Assert(err, jc.ErrorIsNil)

	fsi := &fakeServiceInvoker{result: "ok"}
	pipeline, err := invoker.NewPipeline(invoker.PipelineConfig{
		Invoker: fsi,
		Hub:     h,
		Clock:   clock.WallClock,
	})
	c.Assert(err, jc.ErrorIsNil)

	factory := newFakeFactory()
	router := routing.NewCanaryRouter()
	mgr, err := lifecycle.NewManager(lifecycle.ManagerConfig{
		Factory:        factory,
		Pipeline:       pipeline,
		Governance:     engine,
		Router:         router,
		Hub:            h,
		Clock:          clock.WallClock,
		Shared:         boundary.NewRegistry(),
		ThreadBudget:   10,
		PerInstanceCap: 4,
		DefaultThreads: 2,
		DrainTimeout:   jujutesting.ShortWait,
		LeakCheckDelay: time.Minute,
	})
	c.Assert(err, jc.ErrorIsNil)

	return &fixture{
		manager:  mgr,
		factory:  factory,
		engine:   engine,
		router:   router,
		hub:      h,
		invoker:  fsi,
		recorder: recorder,
		sink:     sink,
	}
}

func definition(id, version string, props map[string]string) module.Definition {
	return module.Definition{
		ID:         id,
		Version:    version,
		Provider:   "acme",
		EntryPoint: "main",
		Properties: props,
	}
}

// installActive installs and starts a module exposing the named
// services.
func (f *fixture) installActive(c *gc.C, id, version string, services ...string) *lifecycle.Instance {
	f.factory.mu.Lock()
	f.factory.services[id] = services
	f.factory.mu.Unlock()
	inst, err := f.manager.Install(definition(id, version, nil))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(f.manager.Start(id), jc.ErrorIsNil)
	return inst
}
