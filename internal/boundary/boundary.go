// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package boundary implements the per-instance isolation namespace.
// A boundary resolves module-local resources over a shared registry
// of cross-module API types, counts the calls currently inside it,
// and refuses new entries once closed. Close waits for in-flight
// calls to drain before tearing anything down.
package boundary

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	coreerrors "github.com/lingframe/lingframe/core/errors"
)

var logger = loggo.GetLogger("lingframe.boundary")

// Registry is a concurrent name -> resource namespace. The process
// holds one shared Registry, preloaded at startup with the
// cross-module API types every boundary may resolve.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]interface{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]interface{})}
}

// Register binds name to res, replacing any previous binding.
func (r *Registry) Register(name string, res interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[name] = res
}

// Lookup returns the resource bound to name.
func (r *Registry) Lookup(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[name]
	return res, ok
}

// Config holds the dependencies of a Boundary.
type Config struct {
	// ModuleID and Version identify the owning instance in logs and
	// leak reports.
	ModuleID string
	Version  string

	// Shared is the process-wide registry of cross-module API types.
	Shared *Registry

	// Clock times the close drain wait.
	Clock clock.Clock
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.ModuleID == "" {
		return errors.NotValidf("empty ModuleID")
	}
	if c.Shared == nil {
		return errors.NotValidf("nil Shared registry")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

type deregistration struct {
	name string
	fn   func() error
}

// Boundary is one instance's private namespace plus its in-flight
// call gate. All methods are safe for concurrent use.
type Boundary struct {
	cfg Config

	mu        sync.Mutex
	refs      int
	closed    bool
	tornDown  bool
	drained   chan struct{}
	resources map[string]interface{}
	drivers   []deregistration
}

// New returns an open boundary.
func New(cfg Config) (*Boundary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Boundary{
		cfg:       cfg,
		drained:   make(chan struct{}),
		resources: make(map[string]interface{}),
	}, nil
}

// ModuleID returns the owning module's id.
func (b *Boundary) ModuleID() string {
	return b.cfg.ModuleID
}

// Register binds a module-private resource into the namespace.
func (b *Boundary) Register(name string, res interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.Annotatef(coreerrors.BoundaryClosed, "registering %q in module %q", name, b.cfg.ModuleID)
	}
	b.resources[name] = res
	return nil
}

// RegisterDriver records that code inside this boundary registered a
// driver-like resource in a global registry. The deregistration runs
// exactly once, during close; global registries are a common cause of
// a closed boundary staying pinned in memory.
func (b *Boundary) RegisterDriver(name string, deregister func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.Annotatef(coreerrors.BoundaryClosed, "registering driver %q in module %q", name, b.cfg.ModuleID)
	}
	b.drivers = append(b.drivers, deregistration{name: name, fn: deregister})
	return nil
}

// Resolve returns the resource bound to name, consulting the private
// namespace first and the shared registry second. After close it
// fails with BoundaryClosed for every name; it never falls through to
// the shared registry.
func (b *Boundary) Resolve(name string) (interface{}, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.Annotatef(coreerrors.BoundaryClosed, "resolving %q in module %q", name, b.cfg.ModuleID)
	}
	res, ok := b.resources[name]
	b.mu.Unlock()
	if ok {
		return res, nil
	}
	if res, ok := b.cfg.Shared.Lookup(name); ok {
		return res, nil
	}
	return nil, errors.NotFoundf("resource %q in module %q", name, b.cfg.ModuleID)
}

// Enter admits a call into the boundary, incrementing the in-flight
// count, and returns the exit function the caller must run on every
// exit path. The closed check and the increment are a single atomic
// region: a call can never enter a closed boundary.
func (b *Boundary) Enter() (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.Annotatef(coreerrors.BoundaryClosed, "entering module %q", b.cfg.ModuleID)
	}
	b.refs++
	var once sync.Once
	return func() {
		once.Do(b.exit)
	}, nil
}

func (b *Boundary) exit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs--
	if b.refs < 0 {
		// Exit ran without a matching Enter; clamp and complain.
		logger.Criticalf("reference count underflow in module %q", b.cfg.ModuleID)
		b.refs = 0
	}
	if b.refs == 0 && b.closed {
		close(b.drained)
	}
}

// RefCount returns the number of calls currently inside the boundary.
func (b *Boundary) RefCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

// IsClosed reports whether the boundary has been closed.
func (b *Boundary) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close shuts the entry gate, waits (bounded by timeout, forever when
// timeout is zero or less) for in-flight calls to drain, then drops
// the private namespace and deregisters any recorded drivers. It is
// idempotent: later calls return nil without repeating the teardown.
// If the drain wait times out the boundary stays closed to new
// entries but teardown is not performed, and an error satisfying
// errors.Is(err, StillInUse) is returned.
func (b *Boundary) Close(timeout time.Duration) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		if b.refs == 0 {
			close(b.drained)
		}
	}
	if b.tornDown {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if timeout > 0 {
		select {
		case <-b.drained:
		case <-b.cfg.Clock.After(timeout):
			return errors.Annotatef(coreerrors.StillInUse,
				"module %q has %d in-flight calls after %v", b.cfg.ModuleID, b.RefCount(), timeout)
		}
	} else {
		<-b.drained
	}

	b.mu.Lock()
	if b.tornDown {
		b.mu.Unlock()
		return nil
	}
	b.tornDown = true
	drivers := b.drivers
	b.drivers = nil
	b.resources = make(map[string]interface{})
	b.mu.Unlock()

	for _, d := range drivers {
		if err := d.fn(); err != nil {
			logger.Warningf("deregistering driver %q for module %q: %v", d.name, b.cfg.ModuleID, err)
		}
	}
	return nil
}
