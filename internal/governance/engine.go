// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package governance

import (
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/lingframe/lingframe/core/access"
	coreerrors "github.com/lingframe/lingframe/core/errors"
	"github.com/lingframe/lingframe/core/invocation"
	"github.com/lingframe/lingframe/core/module"
)

var logger = loggo.GetLogger("lingframe.governance")

// Grant records one module's access to one capability. At most one
// live grant exists per (module, capability) key; granting again
// replaces the previous record.
type Grant struct {
	ModuleID   string
	Capability string
	Access     access.Access
	GrantedAt  time.Time

	// ExpiresAt is nil for grants that never expire.
	ExpiresAt *time.Time

	// Source records who issued the grant, for audit trails.
	Source string
}

// Expired reports whether the grant has lapsed at the given time.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

type grantKey struct {
	moduleID   string
	capability string
}

// AuditEntry is one record of a governance decision.
type AuditEntry struct {
	Timestamp  time.Time
	ModuleID   string
	Capability string
	Operation  string
	Allowed    bool
}

// AuditSink receives audit entries. Append failures are logged and
// swallowed: auditing never blocks or fails the call it records.
type AuditSink interface {
	Append(AuditEntry) error
}

// EngineConfig holds the dependencies and policy knobs of an Engine.
type EngineConfig struct {
	// Clock supplies the time for grant issue and expiry checks.
	Clock clock.Clock

	// DevMode, when set, makes every permission check pass. For
	// local development only.
	DevMode bool

	// GovernHostCalls subjects host-originated and module-internal
	// self-calls to permission checks. By default they are exempt,
	// which avoids the governance engine needing governance to run.
	GovernHostCalls bool

	// FrameworkAPIs lists capabilities owned by the framework itself,
	// free to every module at read level or below.
	FrameworkAPIs []string

	// Sink receives audit entries; nil disables audit recording.
	Sink AuditSink
}

// Validate ensures that the config values are valid.
func (c EngineConfig) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Engine is the runtime's permission and audit authority. All methods
// are safe for concurrent use; the grant table sits on the hot call
// path and is guarded by a read/write lock rather than a coarse
// engine-wide mutex.
type Engine struct {
	cfg       EngineConfig
	whitelist set.Strings

	mu     sync.RWMutex
	grants map[grantKey]Grant
}

// NewEngine returns an engine with an empty grant table.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Engine{
		cfg:       cfg,
		whitelist: set.NewStrings(cfg.FrameworkAPIs...),
		grants:    make(map[grantKey]Grant),
	}, nil
}

// Grant gives moduleID the supplied access to capability, replacing
// any existing grant for the same key and refreshing GrantedAt.
func (e *Engine) Grant(moduleID, capability string, a access.Access, expiresAt *time.Time, source string) error {
	if moduleID == "" {
		return errors.NotValidf("grant with blank module id")
	}
	if capability == "" {
		return errors.NotValidf("grant for module %q with blank capability", moduleID)
	}
	if err := a.Validate(); err != nil {
		return errors.Trace(err)
	}
	g := Grant{
		ModuleID:   moduleID,
		Capability: capability,
		Access:     a,
		GrantedAt:  e.cfg.Clock.Now(),
		ExpiresAt:  expiresAt,
		Source:     source,
	}
	e.mu.Lock()
	e.grants[grantKey{moduleID, capability}] = g
	e.mu.Unlock()
	return nil
}

// Revoke removes the grant for (moduleID, capability), if any.
func (e *Engine) Revoke(moduleID, capability string) {
	e.mu.Lock()
	delete(e.grants, grantKey{moduleID, capability})
	e.mu.Unlock()
}

// RemoveModule atomically drops every grant held by moduleID. Called
// when the module is uninstalled.
func (e *Engine) RemoveModule(moduleID string) {
	e.mu.Lock()
	for key := range e.grants {
		if key.moduleID == moduleID {
			delete(e.grants, key)
		}
	}
	e.mu.Unlock()
}

// ModuleGrants returns a snapshot of the live grants held by moduleID.
func (e *Engine) ModuleGrants(moduleID string) []Grant {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Grant
	for key, g := range e.grants {
		if key.moduleID == moduleID {
			out = append(out, g)
		}
	}
	return out
}

// IsAllowed reports whether moduleID currently holds the required
// access to capability. Dev mode allows everything; framework-owned
// capabilities are free at read level or below; otherwise the live
// grant must satisfy the requirement and be unexpired. Absence of a
// grant is a denial.
func (e *Engine) IsAllowed(moduleID, capability string, required access.Access) bool {
	if e.cfg.DevMode {
		return true
	}
	if e.whitelist.Contains(capability) && access.ReadAccess.Satisfies(required) {
		return true
	}
	e.mu.RLock()
	g, ok := e.grants[grantKey{moduleID, capability}]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	return g.Access.Satisfies(required) && !g.Expired(e.cfg.Clock.Now())
}

// Audit appends one audit record for a governance decision. Sink
// failures are logged and swallowed.
func (e *Engine) Audit(moduleID, capability, operation string, allowed bool) {
	if e.cfg.Sink == nil {
		return
	}
	err := e.cfg.Sink.Append(AuditEntry{
		Timestamp:  e.cfg.Clock.Now(),
		ModuleID:   moduleID,
		Capability: capability,
		Operation:  operation,
		Allowed:    allowed,
	})
	if err != nil {
		logger.Warningf("dropping audit record for %s on %q: %v", operation, moduleID, err)
	}
}

// Annotate fills the governance-derived fields of the invocation
// context from the target module's explicit policy, falling back to
// inference for anything the policy does not cover.
func (e *Engine) Annotate(ictx *invocation.Context, policy module.GovernancePolicy) {
	if rule, ok := permissionRuleFor(policy, ictx.Operation); ok {
		ictx.RequiredPermission = rule.PermissionID
		ictx.AccessType = accessFromPermissionID(rule.PermissionID)
		ictx.RuleSource = "policy"
	} else {
		ictx.AccessType = InferAccess(ictx.Operation)
		ictx.RequiredPermission = InferPermission(ictx.ResourceType, ictx.Operation)
		ictx.RuleSource = "inferred"
	}
	if rule, ok := auditRuleFor(policy, ictx.Operation); ok {
		ictx.AuditAction = rule.Action
		ictx.ShouldAudit = rule.Enabled
	} else {
		ictx.AuditAction = InferAuditAction(ictx.ResourceType, ictx.Operation)
		// Reads are the hot path and low risk; by default only
		// mutating and unclassified operations are audited.
		ictx.ShouldAudit = ictx.AccessType != access.ReadAccess
	}
}

// accessFromPermissionID recovers the access level embedded in an
// explicit permission id of the form "<Resource>:<ACCESS>". Ids
// without a recognizable level are treated as execute, the most
// restrictive requirement.
func accessFromPermissionID(id string) access.Access {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		if a, err := access.Parse(id[i+1:]); err == nil {
			return a
		}
	}
	return access.ExecuteAccess
}

// CheckInvocation enforces governance for an annotated context. A nil
// return means the call may proceed. Host-originated calls (no caller
// module) and module-internal self-calls are exempt unless the engine
// is configured to govern them. Denials are audited when the context
// asks for auditing.
func (e *Engine) CheckInvocation(ictx *invocation.Context) error {
	hostCall := ictx.CallerModuleID == "" || ictx.CallerModuleID == ictx.ModuleID
	if hostCall && !e.cfg.GovernHostCalls {
		return nil
	}
	capability := ictx.ResourceType
	allowed := e.IsAllowed(ictx.CallerModuleID, capability, ictx.AccessType)
	if ictx.ShouldAudit {
		e.Audit(ictx.CallerModuleID, capability, ictx.AuditAction, allowed)
	}
	if !allowed {
		return coreerrors.NewPermissionDenied(ictx.CallerModuleID, capability, ictx.AccessType)
	}
	return nil
}
