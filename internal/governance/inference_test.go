// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package governance_test

import (
	gc "gopkg.in/check.v1"

	"github.com/lingframe/lingframe/core/access"
	"github.com/lingframe/lingframe/internal/governance"
)

type InferenceSuite struct{}

var _ = gc.Suite(&InferenceSuite{})

func (*InferenceSuite) TestHighRiskTermsWinOverReadPrefix(c *gc.C) {
	// getInstance starts with a read prefix but hands out an object
	// that can mutate state, so the high-risk rule must win.
	for i, op := range []string{"createInstance", "getInstance", "buildFoo", "getFactory", "queryBuilder"} {
		c.Logf("test %d: %s", i, op)
		c.Check(governance.InferAccess(op), gc.Equals, access.WriteAccess)
	}
}

func (*InferenceSuite) TestWritePrefixes(c *gc.C) {
	for i, op := range []string{
		"saveUser", "insertRow", "updateBalance", "modifyThing",
		"deleteUser", "removeEntry", "addItem", "setFlag",
	} {
		c.Logf("test %d: %s", i, op)
		c.Check(governance.InferAccess(op), gc.Equals, access.WriteAccess)
	}
}

func (*InferenceSuite) TestReadPrefixes(c *gc.C) {
	for i, op := range []string{
		"getUser", "findUser", "queryOrders", "listThings",
		"selectRows", "countUsers", "checkStatus", "isEnabled", "hasRole",
	} {
		c.Logf("test %d: %s", i, op)
		c.Check(governance.InferAccess(op), gc.Equals, access.ReadAccess)
	}
}

func (*InferenceSuite) TestUnrecognizedDefaultsToExecute(c *gc.C) {
	for i, op := range []string{"frobnicate", "transfer", "launch"} {
		c.Logf("test %d: %s", i, op)
		c.Check(governance.InferAccess(op), gc.Equals, access.ExecuteAccess)
	}
}

func (*InferenceSuite) TestCaseInsensitive(c *gc.C) {
	c.Check(governance.InferAccess("FindUser"), gc.Equals, access.ReadAccess)
	c.Check(governance.InferAccess("DELETEUSER"), gc.Equals, access.WriteAccess)
	c.Check(governance.InferAccess("GetINSTANCE"), gc.Equals, access.WriteAccess)
}

func (*InferenceSuite) TestInferPermission(c *gc.C) {
	c.Check(governance.InferPermission("User", "findUser"), gc.Equals, "User:READ")
	c.Check(governance.InferPermission("User", "deleteUser"), gc.Equals, "User:WRITE")
	c.Check(governance.InferPermission("Ledger", "frobnicate"), gc.Equals, "Ledger:EXECUTE")
}

func (*InferenceSuite) TestInferAuditAction(c *gc.C) {
	c.Check(governance.InferAuditAction("User", "deleteUser"), gc.Equals, "User.deleteUser")
}
