// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package routing

import (
	"math/rand"
	"sync"

	"github.com/juju/errors"
)

// canaryConfig is the per-module traffic split.
type canaryConfig struct {
	percent int
	version string
}

// CanaryRouter overlays percentage-based version routing on the base
// label router. Each routing decision draws independently; there is
// no session affinity across calls.
type CanaryRouter struct {
	// intn draws a uniform integer in [0, n); replaceable for tests.
	intn func(n int) int

	mu      sync.RWMutex
	configs map[string]canaryConfig
}

// NewCanaryRouter returns a router with no canary configuration; all
// decisions delegate to the base label router until SetCanary is
// called.
func NewCanaryRouter() *CanaryRouter {
	return &CanaryRouter{
		intn:    rand.Intn,
		configs: make(map[string]canaryConfig),
	}
}

// SetCanary directs percent of the module's traffic to the instance
// whose version exactly equals version. Percent zero clears the
// configuration.
func (r *CanaryRouter) SetCanary(moduleID, version string, percent int) error {
	if percent < 0 || percent > 100 {
		return errors.NotValidf("canary percent %d", percent)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if percent == 0 {
		delete(r.configs, moduleID)
		return nil
	}
	r.configs[moduleID] = canaryConfig{percent: percent, version: version}
	return nil
}

// ClearCanary removes the module's canary configuration, if any.
func (r *CanaryRouter) ClearCanary(moduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.configs, moduleID)
}

// CanaryPercent returns the module's configured canary percentage,
// zero when no configuration exists.
func (r *CanaryRouter) CanaryPercent(moduleID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[moduleID].percent
}

// Route picks one candidate for a call to the module. With no canary
// configuration the decision is entirely the base label router's.
// Otherwise a draw under the configured percentage goes to the
// configured version; when no candidate carries that exact version
// the second-listed candidate stands in, it being the newest
// non-stable instance by registration order.
func (r *CanaryRouter) Route(moduleID string, candidates []Candidate, labels map[string]string) Candidate {
	if len(candidates) == 0 {
		return nil
	}
	r.mu.RLock()
	cfg, ok := r.configs[moduleID]
	r.mu.RUnlock()
	if !ok {
		return RouteByLabels(candidates, labels)
	}
	if r.intn(100) < cfg.percent {
		for _, cand := range candidates {
			if cand.ModuleVersion() == cfg.version {
				return cand
			}
		}
		if len(candidates) > 1 {
			logger.Debugf("no instance of module %q has canary version %q; using second candidate", moduleID, cfg.version)
			return candidates[1]
		}
	}
	return candidates[0]
}
