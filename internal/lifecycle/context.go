// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"strings"

	"github.com/juju/errors"

	"github.com/lingframe/lingframe/core/access"
	coreerrors "github.com/lingframe/lingframe/core/errors"
	"github.com/lingframe/lingframe/core/invocation"
	"github.com/lingframe/lingframe/core/module"
)

// ServiceRef is a resolved handle to a service another module
// exposes.
type ServiceRef struct {
	ServiceID string
	ModuleID  string
}

// ModuleContext is the thin facade handed to module code: service
// lookup, governed invocation, configuration access and event
// publication, all scoped to the owning module's identity.
type ModuleContext struct {
	caller string
	mgr    *Manager
}

// ContextFor returns the facade for the named module. An empty id
// yields a host-scoped context exempt from governance by default.
func (m *Manager) ContextFor(moduleID string) *ModuleContext {
	return &ModuleContext{caller: moduleID, mgr: m}
}

// GetService looks up a live instance exposing the capability,
// filtered by the caller's permission. Lookup failure is reported as
// (nil, false), never as an error.
func (c *ModuleContext) GetService(capability string) (*ServiceRef, bool) {
	targetModule, ok := c.mgr.reg.moduleForService(capability)
	if !ok {
		return nil, false
	}
	if c.mgr.findByState(targetModule, module.Active) == nil {
		return nil, false
	}
	selfCall := c.caller == "" || c.caller == targetModule
	if !selfCall && !c.mgr.cfg.Governance.IsAllowed(c.caller, capability, access.ReadAccess) {
		return nil, false
	}
	return &ServiceRef{ServiceID: capability, ModuleID: targetModule}, true
}

// Invoke performs a governed call to a service. The service id may
// carry the method after a dot ("user-service.getUser"); without one
// the service's generic invoke method is used. Permission denials and
// invalid arguments are returned unchanged; any other failure is
// wrapped as an invocation failure carrying the original message.
func (c *ModuleContext) Invoke(serviceID string, args ...interface{}) (interface{}, error) {
	if serviceID == "" {
		return nil, errors.NotValidf("blank service id")
	}
	service, method := serviceID, "invoke"
	if i := strings.LastIndex(serviceID, "."); i >= 0 {
		service, method = serviceID[:i], serviceID[i+1:]
	}
	targetModule, ok := c.mgr.reg.moduleForService(service)
	if !ok {
		return nil, coreerrors.NewInvocationFailed(
			errors.NotFoundf("service %q", service), "invoking %q", serviceID)
	}
	ictx, err := invocation.NewContext(targetModule, service, method)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ictx.CallerModuleID = c.caller
	ictx.ResourceID = service
	ictx.Args = args
	result, err := c.mgr.Invoke(ictx)
	if err == nil {
		return result, nil
	}
	if coreerrors.IsPermissionDenied(err) || errors.IsNotValid(err) || coreerrors.IsInvocationFailed(err) {
		return nil, err
	}
	return nil, coreerrors.NewInvocationFailed(err, "invoking %q", serviceID)
}

// GetProperty returns a property from the calling module's own
// definition.
func (c *ModuleContext) GetProperty(key string) (string, bool) {
	cands := c.mgr.reg.list(c.caller)
	if len(cands) == 0 {
		return "", false
	}
	v, ok := cands[0].def.Properties[key]
	return v, ok
}

// PublishEvent publishes a payload on the runtime's event hub.
func (c *ModuleContext) PublishEvent(topic string, payload interface{}) {
	c.mgr.cfg.Hub.Publish(topic, payload)
}
