// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package lifecycle owns the module instances hosted in the process:
// installing, starting, upgrading and uninstalling them, accounting
// their thread allocations against the process-wide budget, and
// brokering every governed call to a concrete instance.
package lifecycle

import (
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/lingframe/lingframe/core/module"
	"github.com/lingframe/lingframe/internal/boundary"
)

// labelPropertyPrefix marks definition properties that become routing
// labels on the instance, e.g. "lingframe.label.region" -> "region".
const labelPropertyPrefix = "lingframe.label."

// Instance is one running (or loading, or failed) version of a
// module. It owns exactly one isolation boundary and one container.
// State is mutated only by the Manager; the in-flight reference count
// lives on the boundary's entry gate.
type Instance struct {
	def      module.Definition
	labels   map[string]string
	boundary *boundary.Boundary

	mu        sync.Mutex
	state     module.State
	container Container
	threads   int
}

func newInstance(def module.Definition, b *boundary.Boundary) *Instance {
	labels := make(map[string]string)
	for k, v := range def.Properties {
		if strings.HasPrefix(k, labelPropertyPrefix) {
			labels[strings.TrimPrefix(k, labelPropertyPrefix)] = v
		}
	}
	return &Instance{
		def:      def,
		labels:   labels,
		boundary: b,
		state:    module.Unloaded,
	}
}

// ID returns the module id.
func (i *Instance) ID() string {
	return i.def.ID
}

// Version returns the instance's version string.
func (i *Instance) Version() string {
	return i.def.Version
}

// Definition returns an independent copy of the instance's
// definition.
func (i *Instance) Definition() module.Definition {
	return i.def.Copy()
}

// State returns the instance's current lifecycle state.
func (i *Instance) State() module.State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// setState moves the instance to next, validating the transition.
func (i *Instance) setState(next module.State) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.state.CanTransitionTo(next) {
		return errors.NotValidf("module %q transition %s -> %s", i.def.ID, i.state, next)
	}
	i.state = next
	return nil
}

// forceError moves the instance to the error state from wherever it
// is. Used when a lifecycle operation fails unrecoverably.
func (i *Instance) forceError() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = module.Error
}

// ModuleID is part of the invoker.Target interface.
func (i *Instance) ModuleID() string {
	return i.def.ID
}

// ModuleVersion is part of the routing.Candidate and invoker.Target
// interfaces.
func (i *Instance) ModuleVersion() string {
	return i.def.Version
}

// RoutingLabels is part of the routing.Candidate interface. Labels
// are fixed at install time; callers get the live map and must not
// mutate it.
func (i *Instance) RoutingLabels() map[string]string {
	return i.labels
}

// Enter is part of the invoker.Target interface.
func (i *Instance) Enter() (func(), error) {
	return i.boundary.Enter()
}

// Boundary is part of the invoker.Target interface.
func (i *Instance) Boundary() *boundary.Boundary {
	return i.boundary
}

// RefCount returns the number of calls currently inside the
// instance's boundary.
func (i *Instance) RefCount() int {
	return i.boundary.RefCount()
}
