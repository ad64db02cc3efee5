// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package boundary

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"gopkg.in/tomb.v2"
)

// CollectionProbe installs a finalizer on the boundary and returns a
// probe reporting whether the collector has reclaimed it. The closure
// holds no reference to the boundary itself, so it cannot pin the
// very object it is watching.
func CollectionProbe(b *Boundary) func() bool {
	var collected atomic.Bool
	runtime.SetFinalizer(b, func(*Boundary) {
		collected.Store(true)
	})
	return collected.Load
}

// LeakCheckConfig holds the dependencies of a leak check worker.
type LeakCheckConfig struct {
	// ModuleID names the module in leak reports.
	ModuleID string

	// Clock times the delay between boundary close and the check.
	Clock clock.Clock

	// Delay is how long after close to wait before probing; pinning
	// references are usually dropped within a few seconds of
	// teardown.
	Delay time.Duration

	// Collected reports whether the boundary has been reclaimed,
	// typically a CollectionProbe.
	Collected func() bool

	// Report is invoked when the boundary is still reachable after
	// the delay. Defaults to a log warning naming the module.
	Report func(moduleID string)
}

// Validate ensures that the config values are valid.
func (c LeakCheckConfig) Validate() error {
	if c.ModuleID == "" {
		return errors.NotValidf("empty ModuleID")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Delay <= 0 {
		return errors.NotValidf("non-positive Delay")
	}
	if c.Collected == nil {
		return errors.NotValidf("nil Collected probe")
	}
	return nil
}

// leakCheck probes, once, whether a closed boundary was actually
// reclaimed. A boundary that survives garbage collection is pinned by
// something outside the module, commonly a native driver or cache
// holding a strong reference.
type leakCheck struct {
	tomb tomb.Tomb
	cfg  LeakCheckConfig
}

// NewLeakCheck returns a worker that performs the delayed check and
// then finishes. Its failures stay inside the worker; nothing on the
// uninstall path waits for it.
func NewLeakCheck(cfg LeakCheckConfig) (worker.Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Report == nil {
		cfg.Report = func(moduleID string) {
			logger.Warningf("module %q boundary still reachable after close; a resource may be pinning it", moduleID)
		}
	}
	w := &leakCheck{cfg: cfg}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *leakCheck) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *leakCheck) Wait() error {
	return w.tomb.Wait()
}

func (w *leakCheck) loop() error {
	select {
	case <-w.tomb.Dying():
		return tomb.ErrDying
	case <-w.cfg.Clock.After(w.cfg.Delay):
	}
	// Two passes: the first queues the finalizer, the second runs it.
	runtime.GC()
	runtime.GC()
	if !w.cfg.Collected() {
		w.cfg.Report(w.cfg.ModuleID)
	}
	return nil
}
