// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package routing picks one concrete module instance for each call.
// The base policy matches request labels against instance labels; the
// canary overlay diverts a configured percentage of traffic to a
// named version during upgrades.
package routing

import (
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("lingframe.routing")

// Candidate is the router's view of a module instance. Candidate
// order is significant: by convention the first element of a
// candidate list is the stable instance.
type Candidate interface {
	// ModuleVersion returns the instance's version string.
	ModuleVersion() string

	// RoutingLabels returns the instance's routing labels.
	RoutingLabels() map[string]string
}

// RouteByLabels selects a candidate by label affinity. Each label the
// request carries scores +10 on a candidate holding it with an equal
// value; a candidate holding it with a different value is
// disqualified outright. Labels the candidate has but the request
// does not mention are ignored. Ties break by encounter order. With
// no labels, a single candidate, or every candidate disqualified, the
// first candidate wins.
func RouteByLabels(candidates []Candidate, labels map[string]string) Candidate {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 || len(labels) == 0 {
		return candidates[0]
	}
	best := -1
	bestScore := -1
	for i, cand := range candidates {
		score := scoreCandidate(cand, labels)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < 0 {
		// Everyone disqualified; fall back to stable.
		return candidates[0]
	}
	return candidates[best]
}

// scoreCandidate returns -1 when the candidate is disqualified by a
// conflicting label value.
func scoreCandidate(cand Candidate, labels map[string]string) int {
	have := cand.RoutingLabels()
	score := 0
	for key, want := range labels {
		got, ok := have[key]
		if !ok {
			continue
		}
		if got != want {
			return -1
		}
		score += 10
	}
	return score
}
