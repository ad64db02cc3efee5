// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package module holds the static descriptor and runtime state types
// for a hosted module ("ling").
package module

import (
	"github.com/juju/errors"
)

// PermissionRule binds a method name pattern to an explicit
// permission identifier, overriding inference for matching methods.
// Patterns match exactly, or by prefix when they end in "*".
type PermissionRule struct {
	MethodPattern string
	PermissionID  string
}

// AuditRule binds a method name pattern to an explicit audit action.
type AuditRule struct {
	MethodPattern string
	Action        string
	Enabled       bool
}

// GovernancePolicy carries a module's explicit governance overrides.
// Rule order is significant: the first matching rule wins. Empty
// lists are the safe default, leaving everything to inference.
type GovernancePolicy struct {
	Permissions []PermissionRule
	Audits      []AuditRule
}

// Copy returns an independent deep copy of the policy.
func (p GovernancePolicy) Copy() GovernancePolicy {
	out := GovernancePolicy{}
	if p.Permissions != nil {
		out.Permissions = make([]PermissionRule, len(p.Permissions))
		copy(out.Permissions, p.Permissions)
	}
	if p.Audits != nil {
		out.Audits = make([]AuditRule, len(p.Audits))
		copy(out.Audits, p.Audits)
	}
	return out
}

// Definition is the static descriptor for one version of a module.
// Definitions are copied whenever they cross an ownership boundary so
// that no two owners share mutable state.
type Definition struct {
	// ID uniquely names the module within the process.
	ID string

	// Version names this release of the module. Versions are opaque
	// strings compared only for equality.
	Version string

	// Provider and Description are informational.
	Provider    string
	Description string

	// EntryPoint is the fully-qualified name of the module's
	// lifecycle hook, resolved by the container factory.
	EntryPoint string

	// Governance holds explicit permission/audit overrides.
	Governance GovernancePolicy

	// Properties carries free-form module configuration.
	Properties map[string]string
}

// Validate returns an error satisfying errors.IsNotValid if the
// definition cannot be accepted by the lifecycle manager.
func (d Definition) Validate() error {
	if d.ID == "" {
		return errors.NotValidf("module definition with blank id")
	}
	if d.Version == "" {
		return errors.NotValidf("module definition %q with blank version", d.ID)
	}
	return nil
}

// Copy returns an independent deep copy of the definition: a new
// properties map and a new nested policy.
func (d Definition) Copy() Definition {
	out := d
	out.Governance = d.Governance.Copy()
	if d.Properties != nil {
		out.Properties = make(map[string]string, len(d.Properties))
		for k, v := range d.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// Property returns the named property, or fallback when unset.
func (d Definition) Property(key, fallback string) string {
	if v, ok := d.Properties[key]; ok {
		return v
	}
	return fallback
}
