// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle

import (
	"github.com/lingframe/lingframe/internal/boundary"
)

// Container is a running module: named service lookup plus start and
// stop hooks. Implementations are supplied by adapters (a nested
// application context, an embedded interpreter, whatever) and must
// respect the supplied isolation boundary for all resource loading.
type Container interface {
	// Start brings the module's entry point up.
	Start() error

	// Stop shuts the module down. It is called at most once, after
	// Start has returned successfully.
	Stop() error

	// Lookup resolves a named bean or service exposed by the module.
	Lookup(name string) (interface{}, error)

	// Services lists the service ids this module exposes to other
	// modules. Available once Start has returned.
	Services() []string
}

// ContainerFactory creates a running container for a module version.
// It is the runtime's SPI to whatever loading mechanism the host
// process uses.
type ContainerFactory interface {
	Create(moduleID, artifact string, b *boundary.Boundary) (Container, error)
}
