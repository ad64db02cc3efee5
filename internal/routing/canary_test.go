// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package routing_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/lingframe/lingframe/internal/routing"
)

type CanarySuite struct{}

var _ = gc.Suite(&CanarySuite{})

func (*CanarySuite) TestSetCanaryValidation(c *gc.C) {
	r := routing.NewCanaryRouter()
	c.Check(r.SetCanary("m", "v2", -1), jc.Satisfies, errors.IsNotValid)
	c.Check(r.SetCanary("m", "v2", 101), jc.Satisfies, errors.IsNotValid)
	c.Check(r.SetCanary("m", "v2", 0), jc.ErrorIsNil)
	c.Check(r.SetCanary("m", "v2", 100), jc.ErrorIsNil)
}

func (*CanarySuite) TestZeroPercentClears(c *gc.C) {
	r := routing.NewCanaryRouter()
	c.Assert(r.SetCanary("m", "v2", 30), jc.ErrorIsNil)
	c.Check(r.CanaryPercent("m"), gc.Equals, 30)
	c.Assert(r.SetCanary("m", "v2", 0), jc.ErrorIsNil)
	c.Check(r.CanaryPercent("m"), gc.Equals, 0)
}

func (*CanarySuite) TestFullCanaryAlwaysRoutesToVersion(c *gc.C) {
	v1 := &fakeCandidate{name: "stable", version: "v1"}
	v2 := &fakeCandidate{name: "canary", version: "v2"}
	r := routing.NewCanaryRouter()
	c.Assert(r.SetCanary("m", "v2", 100), jc.ErrorIsNil)

	for i := 0; i < 20; i++ {
		got := r.Route("m", candidates(v1, v2), nil)
		c.Assert(got, gc.Equals, routing.Candidate(v2))
	}
}

func (*CanarySuite) TestNoConfigDelegatesToBaseRouter(c *gc.C) {
	v1 := &fakeCandidate{name: "stable", version: "v1", labels: map[string]string{"region": "eu"}}
	v2 := &fakeCandidate{name: "canary", version: "v2", labels: map[string]string{"region": "us"}}
	r := routing.NewCanaryRouter()

	got := r.Route("m", candidates(v1, v2), map[string]string{"region": "us"})
	c.Check(got, gc.Equals, routing.Candidate(v2))
}

func (*CanarySuite) TestDrawAbovePercentRoutesStable(c *gc.C) {
	v1 := &fakeCandidate{name: "stable", version: "v1"}
	v2 := &fakeCandidate{name: "canary", version: "v2"}
	r := routing.NewCanaryRouter()
	routing.PatchIntn(r, func(int) int { return 50 })
	c.Assert(r.SetCanary("m", "v2", 30), jc.ErrorIsNil)

	got := r.Route("m", candidates(v1, v2), nil)
	c.Check(got, gc.Equals, routing.Candidate(v1))
}

func (*CanarySuite) TestDrawBelowPercentRoutesCanary(c *gc.C) {
	v1 := &fakeCandidate{name: "stable", version: "v1"}
	v2 := &fakeCandidate{name: "canary", version: "v2"}
	r := routing.NewCanaryRouter()
	routing.PatchIntn(r, func(int) int { return 10 })
	c.Assert(r.SetCanary("m", "v2", 30), jc.ErrorIsNil)

	got := r.Route("m", candidates(v1, v2), nil)
	c.Check(got, gc.Equals, routing.Candidate(v2))
}

func (*CanarySuite) TestNoVersionMatchFallsBackToSecond(c *gc.C) {
	v1 := &fakeCandidate{name: "stable", version: "v1"}
	v3 := &fakeCandidate{name: "newest", version: "v3"}
	r := routing.NewCanaryRouter()
	routing.PatchIntn(r, func(int) int { return 0 })
	c.Assert(r.SetCanary("m", "v2", 100), jc.ErrorIsNil)

	got := r.Route("m", candidates(v1, v3), nil)
	c.Check(got, gc.Equals, routing.Candidate(v3))
}

func (*CanarySuite) TestNoVersionMatchSingleCandidateRoutesStable(c *gc.C) {
	v1 := &fakeCandidate{name: "stable", version: "v1"}
	r := routing.NewCanaryRouter()
	routing.PatchIntn(r, func(int) int { return 0 })
	c.Assert(r.SetCanary("m", "v2", 100), jc.ErrorIsNil)

	got := r.Route("m", candidates(v1), nil)
	c.Check(got, gc.Equals, routing.Candidate(v1))
}

func (*CanarySuite) TestClearCanary(c *gc.C) {
	v1 := &fakeCandidate{name: "stable", version: "v1"}
	v2 := &fakeCandidate{name: "canary", version: "v2"}
	r := routing.NewCanaryRouter()
	c.Assert(r.SetCanary("m", "v2", 100), jc.ErrorIsNil)
	r.ClearCanary("m")

	got := r.Route("m", candidates(v1, v2), nil)
	c.Check(got, gc.Equals, routing.Candidate(v1))
}

func (*CanarySuite) TestEmptyCandidates(c *gc.C) {
	r := routing.NewCanaryRouter()
	c.Check(r.Route("m", nil, nil), gc.IsNil)
}
