package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules receive their section of the modules: map. Configure
// is only called when the section exists; modules apply their defaults again
// in Provision for the unconfigured case.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules open their resources (database handles, API clients)
// and publish them with AppContext.RegisterService. Modules are provisioned
// in load order, so a module can only look up services of earlier modules.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their provisioned state. Validate runs right
// after Provision and must not have side effects.
type Validator interface {
	Validate() error
}

// Starter modules begin background work. Start runs once every module is
// loaded and the memory subsystem has been assembled on top of them.
type Starter interface {
	Start() error
}

// Stopper modules release resources. Stop runs in reverse load order.
type Stopper interface {
	Stop(ctx context.Context) error
}
