// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package access defines the ordered access levels used by the
// governance engine when deciding whether a caller may reach a
// capability exposed by another module.
package access

import (
	"strings"

	"github.com/juju/errors"
)

// Access represents a level of access to a module capability. The
// levels form a strict total order: none < read < write < execute.
type Access string

const (
	// NoAccess is an explicit deny. It never satisfies any
	// requirement, including a requirement of NoAccess itself.
	NoAccess Access = "none"

	// ReadAccess allows read-only operations on a capability.
	ReadAccess Access = "read"

	// WriteAccess allows mutating operations, and implies read.
	WriteAccess Access = "write"

	// ExecuteAccess is the most privileged level, granted for
	// operations whose effect cannot be classified up front.
	ExecuteAccess Access = "execute"
)

// Validate returns an error satisfying errors.IsNotValid if the
// access level is not a known value.
func (a Access) Validate() error {
	switch a {
	case NoAccess, ReadAccess, WriteAccess, ExecuteAccess:
		return nil
	}
	return errors.NotValidf("access level %q", a)
}

// level maps an access value onto its position in the total order.
// Unknown values sort below NoAccess so they can never satisfy
// anything.
func (a Access) level() int {
	switch a {
	case NoAccess:
		return 0
	case ReadAccess:
		return 1
	case WriteAccess:
		return 2
	case ExecuteAccess:
		return 3
	}
	return -1
}

// Satisfies reports whether a grant at this level meets the supplied
// requirement. NoAccess satisfies nothing: it is a recorded denial,
// not the absence of a requirement.
func (a Access) Satisfies(required Access) bool {
	if a == NoAccess || a.level() < 0 {
		return false
	}
	return a.level() >= required.level()
}

// Tag returns the canonical upper-case form used when an access level
// is embedded in a permission identifier, e.g. "User:WRITE".
func (a Access) Tag() string {
	return strings.ToUpper(string(a))
}

// Parse returns the Access named by s, case-insensitively.
func Parse(s string) (Access, error) {
	a := Access(strings.ToLower(s))
	if err := a.Validate(); err != nil {
		return "", errors.Trace(err)
	}
	return a, nil
}
