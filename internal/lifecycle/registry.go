// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"sync"
)

// registry tracks the candidate instances per module id and the
// service index used to resolve a capability to its owning module.
// Candidate order is significant: the first entry is the stable
// instance, upgrades are appended after it.
type registry struct {
	mu         sync.RWMutex
	candidates map[string][]*Instance
	services   map[string]string // service id -> module id
}

func newRegistry() *registry {
	return &registry{
		candidates: make(map[string][]*Instance),
		services:   make(map[string]string),
	}
}

// add appends an instance to its module's candidate list.
func (r *registry) add(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates[inst.ID()] = append(r.candidates[inst.ID()], inst)
}

// remove drops an instance from its module's candidate list, deleting
// the list when it empties.
func (r *registry) remove(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cands := r.candidates[inst.ID()]
	for i, c := range cands {
		if c == inst {
			cands = append(cands[:i], cands[i+1:]...)
			break
		}
	}
	if len(cands) == 0 {
		delete(r.candidates, inst.ID())
	} else {
		r.candidates[inst.ID()] = cands
	}
}

// promote moves an instance to the front of its module's candidate
// list, making it the stable choice.
func (r *registry) promote(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cands := r.candidates[inst.ID()]
	for i, c := range cands {
		if c == inst && i > 0 {
			cands = append(cands[:i], cands[i+1:]...)
			cands = append([]*Instance{inst}, cands...)
			r.candidates[inst.ID()] = cands
			return
		}
	}
}

// list returns a copy of the module's candidate list.
func (r *registry) list(moduleID string) []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cands := r.candidates[moduleID]
	out := make([]*Instance, len(cands))
	copy(out, cands)
	return out
}

// moduleIDs returns the ids of all modules with at least one
// instance.
func (r *registry) moduleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.candidates))
	for id := range r.candidates {
		out = append(out, id)
	}
	return out
}

// indexServices records that the services are provided by the module.
func (r *registry) indexServices(moduleID string, services []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range services {
		r.services[s] = moduleID
	}
}

// unindexServices drops any service entries pointing at the module.
func (r *registry) unindexServices(moduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s, id := range r.services {
		if id == moduleID {
			delete(r.services, s)
		}
	}
}

// moduleForService resolves a service id to its owning module.
func (r *registry) moduleForService(serviceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.services[serviceID]
	return id, ok
}
