// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package events defines the topics and payloads published on the
// runtime's event hub. Observers (dashboards, metrics) subscribe to
// these; nothing in the runtime depends on anyone listening.
package events

// Lifecycle topics.
const (
	InstanceUpgradingTopic   = "lingframe.instance.upgrading"
	InstanceReadyTopic       = "lingframe.instance.ready"
	InstanceDyingTopic       = "lingframe.instance.dying"
	InstanceDestroyedTopic   = "lingframe.instance.destroyed"
	RuntimeShuttingDownTopic = "lingframe.runtime.shutting-down"
	RuntimeShutdownTopic     = "lingframe.runtime.shutdown"
)

// Invocation telemetry topics.
const (
	InvocationStartedTopic   = "lingframe.invocation.started"
	InvocationCompletedTopic = "lingframe.invocation.completed"
	InvocationRejectedTopic  = "lingframe.invocation.rejected"
)

// InstanceUpgrading announces that a new version of a module is being
// installed alongside the running one.
type InstanceUpgrading struct {
	ModuleID   string
	NewVersion string
}

// InstanceReady announces that an instance reached the active state.
// Instance is the runtime instance itself, typed loosely so observers
// outside the lifecycle package can receive it.
type InstanceReady struct {
	ModuleID string
	Version  string
	Instance interface{}
}

// InstanceDying announces that an instance is being torn down.
type InstanceDying struct {
	ModuleID string
	Version  string
}

// InstanceDestroyed announces that an instance's boundary has been
// closed and its resources released.
type InstanceDestroyed struct {
	ModuleID string
	Version  string
}

// InvocationStarted is emitted when a call enters the pipeline.
type InvocationStarted struct {
	ModuleID  string
	ServiceID string
	Caller    string
}

// InvocationCompleted is emitted when a call leaves the pipeline.
type InvocationCompleted struct {
	ModuleID   string
	ServiceID  string
	Caller     string
	DurationMS int64
	Success    bool
}

// InvocationRejected is emitted when a governance or bulkhead check
// rejects a call before it reaches the pipeline.
type InvocationRejected struct {
	ModuleID  string
	ServiceID string
	Reason    string
}
