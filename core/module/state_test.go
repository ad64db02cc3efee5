// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package module_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/lingframe/lingframe/core/module"
)

type StateSuite struct{}

var _ = gc.Suite(&StateSuite{})

var allStates = []module.State{
	module.Unloaded, module.Loading, module.Loaded, module.Starting,
	module.Active, module.Stopping, module.Error, module.Uninstalled,
}

func (*StateSuite) TestValidate(c *gc.C) {
	for i, s := range allStates {
		c.Logf("test %d: %s", i, s)
		c.Check(s.Validate(), jc.ErrorIsNil)
	}
	c.Check(module.State("resurrected").Validate(), jc.Satisfies, errors.IsNotValid)
}

func (*StateSuite) TestHappyPath(c *gc.C) {
	path := []module.State{
		module.Unloaded, module.Loading, module.Loaded, module.Starting,
		module.Active, module.Stopping, module.Unloaded, module.Uninstalled,
	}
	for i := 0; i < len(path)-1; i++ {
		c.Logf("step %d: %s -> %s", i, path[i], path[i+1])
		c.Check(path[i].CanTransitionTo(path[i+1]), jc.IsTrue)
	}
}

func (*StateSuite) TestErrorReachability(c *gc.C) {
	c.Check(module.Loading.CanTransitionTo(module.Error), jc.IsTrue)
	c.Check(module.Starting.CanTransitionTo(module.Error), jc.IsTrue)
	c.Check(module.Active.CanTransitionTo(module.Error), jc.IsTrue)

	c.Check(module.Unloaded.CanTransitionTo(module.Error), jc.IsFalse)
	c.Check(module.Stopping.CanTransitionTo(module.Error), jc.IsFalse)
}

func (*StateSuite) TestUninstalledOnlyFromUnloadedOrError(c *gc.C) {
	for i, s := range allStates {
		c.Logf("test %d: %s", i, s)
		expected := s == module.Unloaded || s == module.Error
		c.Check(s.CanTransitionTo(module.Uninstalled), gc.Equals, expected)
	}
}

func (*StateSuite) TestUninstalledIsTerminal(c *gc.C) {
	c.Check(module.Uninstalled.IsTerminal(), jc.IsTrue)
	for i, next := range allStates {
		c.Logf("test %d: %s", i, next)
		c.Check(module.Uninstalled.CanTransitionTo(next), jc.IsFalse)
	}
}

func (*StateSuite) TestNoSkippingStates(c *gc.C) {
	c.Check(module.Unloaded.CanTransitionTo(module.Active), jc.IsFalse)
	c.Check(module.Loading.CanTransitionTo(module.Starting), jc.IsFalse)
	c.Check(module.Active.CanTransitionTo(module.Unloaded), jc.IsFalse)
	c.Check(module.Active.CanTransitionTo(module.Uninstalled), jc.IsFalse)
}
