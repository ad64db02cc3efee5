// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package module

import (
	"github.com/juju/errors"
)

// State describes where a module instance is in its lifecycle.
type State string

const (
	Unloaded    State = "unloaded"
	Loading     State = "loading"
	Loaded      State = "loaded"
	Starting    State = "starting"
	Active      State = "active"
	Stopping    State = "stopping"
	Error       State = "error"
	Uninstalled State = "uninstalled"
)

// validTransitions enumerates the lifecycle state machine. Error is
// reachable from any state where an unrecoverable failure can occur;
// Uninstalled is terminal and reachable only from Unloaded or Error.
var validTransitions = map[State][]State{
	Unloaded: {Loading, Uninstalled},
	Loading:  {Loaded, Error},
	Loaded:   {Starting, Unloaded},
	Starting: {Active, Error},
	Active:   {Stopping, Error},
	Stopping: {Unloaded},
	Error:    {Uninstalled},
}

// Validate returns an error satisfying errors.IsNotValid if the state
// is not a known value.
func (s State) Validate() error {
	if _, ok := validTransitions[s]; ok || s == Uninstalled {
		return nil
	}
	return errors.NotValidf("module state %q", s)
}

// CanTransitionTo reports whether the state machine permits moving
// from s to next.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range validTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == Uninstalled
}
