// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package invoker implements the guarded invocation pipeline: the
// reference-counted bracket around every call that crosses an
// isolation boundary. The actual dispatch is delegated to the
// external service invoker contract; the bracket is what guarantees
// a boundary is never torn down with a call still inside it.
package invoker

import (
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	coreerrors "github.com/lingframe/lingframe/core/errors"
	"github.com/lingframe/lingframe/core/events"
	"github.com/lingframe/lingframe/core/invocation"
	"github.com/lingframe/lingframe/internal/boundary"
	"github.com/lingframe/lingframe/internal/hub"
)

var logger = loggo.GetLogger("lingframe.invoker")

// Target is the pipeline's view of a module instance.
type Target interface {
	// ModuleID and ModuleVersion identify the instance.
	ModuleID() string
	ModuleVersion() string

	// Enter admits the call into the instance's isolation boundary
	// and returns the exit function; it fails with BoundaryClosed
	// once the boundary is closed.
	Enter() (func(), error)

	// Boundary exposes the instance's namespace so the service
	// invoker can resolve beans through it.
	Boundary() *boundary.Boundary
}

// ServiceInvoker performs one governed call inside a boundary. It is
// an SPI implemented by container adapters; reflective or dynamic
// dispatch happens behind this contract. A failure originating in the
// callee's own business logic must be marked with
// coreerrors.NewBusiness so the pipeline can pass it through
// unchanged.
type ServiceInvoker interface {
	Invoke(ictx *invocation.Context, target Target, serviceID, method string, args []interface{}) (interface{}, error)
}

// PipelineConfig holds the dependencies of a Pipeline.
type PipelineConfig struct {
	Invoker ServiceInvoker
	Hub     *hub.Hub
	Clock   clock.Clock
}

// Validate ensures that the config values are valid.
func (c PipelineConfig) Validate() error {
	if c.Invoker == nil {
		return errors.NotValidf("nil Invoker")
	}
	if c.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Pipeline brackets calls with reference counting and boundary entry.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline returns a pipeline dispatching through the supplied
// service invoker.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Pipeline{cfg: cfg}, nil
}

// Invoke performs one call against the target instance. The bracket
// holds on every exit path: the reference count taken before dispatch
// is released whether the call returns a value, a business error, or
// panics. Taxonomy errors and marked business failures propagate
// unchanged; anything else is wrapped as an invocation failure
// carrying the original cause.
func (p *Pipeline) Invoke(target Target, serviceID, method string, args []interface{}, ictx *invocation.Context) (result interface{}, err error) {
	exit, err := target.Enter()
	if err != nil {
		return nil, errors.Trace(err)
	}
	start := p.cfg.Clock.Now()
	p.cfg.Hub.Publish(events.InvocationStartedTopic, events.InvocationStarted{
		ModuleID:  target.ModuleID(),
		ServiceID: serviceID,
		Caller:    ictx.CallerModuleID,
	})
	defer func() {
		if r := recover(); r != nil {
			err = coreerrors.NewInvocationFailed(errors.Errorf("%v", r),
				"panic invoking %s.%s on module %q", serviceID, method, target.ModuleID())
		}
		p.cfg.Hub.Publish(events.InvocationCompletedTopic, events.InvocationCompleted{
			ModuleID:   target.ModuleID(),
			ServiceID:  serviceID,
			Caller:     ictx.CallerModuleID,
			DurationMS: p.cfg.Clock.Now().Sub(start).Milliseconds(),
			Success:    err == nil,
		})
		exit()
	}()

	result, err = p.cfg.Invoker.Invoke(ictx, target, serviceID, method, args)
	if err != nil {
		if passesThrough(err) {
			return nil, err
		}
		return nil, coreerrors.NewInvocationFailed(err,
			"invoking %s.%s on module %q", serviceID, method, target.ModuleID())
	}
	return result, nil
}

// passesThrough reports whether an invoker error reaches the caller
// unwrapped: governance denials and caller errors must stay visible,
// and a callee's own business failure is not a pipeline failure.
func passesThrough(err error) bool {
	return coreerrors.IsBusiness(err) ||
		coreerrors.IsPermissionDenied(err) ||
		errors.Is(err, coreerrors.BoundaryClosed) ||
		errors.IsNotValid(err) ||
		errors.IsNotFound(err)
}
