package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Optional module capabilities. LoadModule calls Configure, Provision and
// Validate in that order; App calls Start and Stop.

// Configurable modules decode their section of the modules map.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults, open resources and publish services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their configuration without side effects.
type Validator interface {
	Validate() error
}

// Starter modules run background work such as a listener.
type Starter interface {
	Start() error
}

// Stopper modules release what they hold. Stop runs in reverse load order.
type Stopper interface {
	Stop(ctx context.Context) error
}
