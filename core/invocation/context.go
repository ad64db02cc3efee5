// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package invocation defines the per-call context threaded through
// governance, routing and the invocation pipeline.
package invocation

import (
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/lingframe/lingframe/core/access"
)

// Context carries one cross-module call through the runtime. It is
// built once per call; only the governance engine writes to it after
// construction, and then only the governance-derived fields, before
// the call enters the pipeline.
type Context struct {
	// TraceID correlates this call across log lines and events. A
	// fresh id is assigned when none is supplied.
	TraceID string

	// ModuleID names the target module; CallerModuleID names the
	// calling module, or is empty for host-originated calls.
	ModuleID       string
	CallerModuleID string

	// Resource descriptor for the call.
	ResourceType string
	ResourceID   string
	Operation    string

	// Governance-derived fields, filled by the engine.
	RequiredPermission string
	AccessType         access.Access
	AuditAction        string
	ShouldAudit        bool
	RuleSource         string

	// Payload.
	Args     []interface{}
	Metadata map[string]string

	// Labels drive routing between concurrent instance versions.
	Labels map[string]string

	// Timeout is advisory metadata for the container; the runtime
	// itself does not enforce it.
	Timeout time.Duration
}

// NewContext returns a context targeting the named module, resource
// and operation, with a fresh trace id.
func NewContext(moduleID, resourceType, operation string) (*Context, error) {
	if moduleID == "" {
		return nil, errors.NotValidf("invocation with blank module id")
	}
	if operation == "" {
		return nil, errors.NotValidf("invocation of module %q with blank operation", moduleID)
	}
	return &Context{
		TraceID:      uuid.New().String(),
		ModuleID:     moduleID,
		ResourceType: resourceType,
		Operation:    operation,
	}, nil
}
