// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package governance decides what permission a cross-module call
// needs, checks it against the live grant table, and records the
// decision in the audit trail.
package governance

import (
	"fmt"
	"strings"

	"github.com/lingframe/lingframe/core/access"
	"github.com/lingframe/lingframe/core/module"
)

// highRiskTerms mark an operation as write-level wherever they appear
// in its name, regardless of any read-looking prefix: getInstance and
// buildFactory hand out objects that can mutate state.
var highRiskTerms = []string{"instance", "factory", "builder", "create"}

var writePrefixes = []string{
	"create", "save", "insert", "update", "modify", "delete", "remove", "add", "set",
}

var readPrefixes = []string{
	"get", "find", "query", "list", "select", "count", "check", "is", "has",
}

// accessRule is one step of the inference precedence. Rules are tried
// in order; the first match wins.
type accessRule struct {
	name    string
	matches func(op string) bool
	result  access.Access
}

// accessRules is the ordered inference rule list. The order encodes
// the precedence: high-risk terms beat write prefixes beat read
// prefixes; anything unrecognized defaults to execute, the most
// restrictive level.
var accessRules = []accessRule{{
	name: "high-risk-term",
	matches: func(op string) bool {
		return containsAny(op, highRiskTerms)
	},
	result: access.WriteAccess,
}, {
	name: "write-prefix",
	matches: func(op string) bool {
		return hasAnyPrefix(op, writePrefixes)
	},
	result: access.WriteAccess,
}, {
	name: "read-prefix",
	matches: func(op string) bool {
		return hasAnyPrefix(op, readPrefixes)
	},
	result: access.ReadAccess,
}}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// InferAccess classifies an operation name, case-insensitively, into
// the access level it requires.
func InferAccess(operation string) access.Access {
	op := strings.ToLower(operation)
	for _, rule := range accessRules {
		if rule.matches(op) {
			return rule.result
		}
	}
	return access.ExecuteAccess
}

// InferPermission returns the permission identifier an operation on a
// resource requires, in the form "<Resource>:<ACCESS>".
func InferPermission(resourceType, operation string) string {
	return fmt.Sprintf("%s:%s", resourceType, InferAccess(operation).Tag())
}

// InferAuditAction returns the audit action name for an operation on
// a resource, in the form "<Resource>.<operation>".
func InferAuditAction(resourceType, operation string) string {
	return fmt.Sprintf("%s.%s", resourceType, operation)
}

// patternMatches reports whether a policy method pattern matches the
// operation: exact match, or prefix match when the pattern ends in
// "*". A bare "*" matches everything.
func patternMatches(pattern, operation string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(operation, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == operation
}

// permissionRuleFor returns the first explicit permission rule
// matching the operation, if any.
func permissionRuleFor(policy module.GovernancePolicy, operation string) (module.PermissionRule, bool) {
	for _, rule := range policy.Permissions {
		if patternMatches(rule.MethodPattern, operation) {
			return rule, true
		}
	}
	return module.PermissionRule{}, false
}

// auditRuleFor returns the first explicit audit rule matching the
// operation, if any.
func auditRuleFor(policy module.GovernancePolicy, operation string) (module.AuditRule, bool) {
	for _, rule := range policy.Audits {
		if patternMatches(rule.MethodPattern, operation) {
			return rule, true
		}
	}
	return module.AuditRule{}, false
}
