// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package errors holds the error kinds shared across the runtime.
// Invalid-argument and not-found conditions use the generic juju
// errors directly; the kinds here are the ones specific to hosting
// governed modules.
package errors

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/lingframe/lingframe/core/access"
)

const (
	// BoundaryClosed describes an error that occurs when a resource
	// resolution or call entry is attempted against an isolation
	// boundary after it has been closed.
	BoundaryClosed = errors.ConstError("isolation boundary closed")

	// StillInUse describes an error that occurs when a boundary close
	// times out waiting for in-flight calls to drain.
	StillInUse = errors.ConstError("boundary still in use")
)

// PermissionDeniedError reports a failed governance check. It carries
// enough structure for a caller or dashboard to distinguish "not
// allowed" from "broken".
type PermissionDeniedError struct {
	ModuleID   string
	Capability string
	Required   access.Access
}

// Error is part of the error interface.
func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("module %q denied %s access to capability %q",
		e.ModuleID, e.Required, e.Capability)
}

// NewPermissionDenied returns an error reporting that moduleID lacks
// the required access to the named capability.
func NewPermissionDenied(moduleID, capability string, required access.Access) error {
	return &PermissionDeniedError{
		ModuleID:   moduleID,
		Capability: capability,
		Required:   required,
	}
}

// IsPermissionDenied reports whether err is a permission denial.
func IsPermissionDenied(err error) bool {
	return errors.HasType[*PermissionDeniedError](err)
}

// InvocationFailedError wraps an unexpected failure raised while
// crossing the invocation pipeline. The original cause is preserved
// for diagnostics.
type InvocationFailedError struct {
	message string
	cause   error
}

// Error is part of the error interface.
func (e *InvocationFailedError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

// Unwrap exposes the original cause to errors.Is and errors.As.
func (e *InvocationFailedError) Unwrap() error {
	return e.cause
}

// NewInvocationFailed wraps cause in an InvocationFailedError with a
// formatted message.
func NewInvocationFailed(cause error, format string, args ...interface{}) error {
	return &InvocationFailedError{
		message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// IsInvocationFailed reports whether err is a pipeline-level failure.
func IsInvocationFailed(err error) bool {
	return errors.HasType[*InvocationFailedError](err)
}

// businessError marks a failure raised by a module's own business
// logic. The pipeline propagates such failures to the caller
// unchanged instead of wrapping them as pipeline failures.
type businessError struct {
	cause error
}

// Error is part of the error interface.
func (e *businessError) Error() string {
	return e.cause.Error()
}

// Unwrap exposes the underlying business failure.
func (e *businessError) Unwrap() error {
	return e.cause
}

// NewBusiness marks err as a business failure owned by the callee.
// Service invoker implementations use this to signal that a failure
// came from module code rather than the invocation machinery.
func NewBusiness(err error) error {
	if err == nil {
		return nil
	}
	return &businessError{cause: err}
}

// IsBusiness reports whether err is a marked business failure.
func IsBusiness(err error) bool {
	return errors.HasType[*businessError](err)
}
