package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// The interfaces below are optional. LoadModule checks a module for each
// of them in turn:
//
//	New() → Configure() → Provision() → Validate()
//
// App.Start then calls Start in load order, App.Stop calls Stop in reverse,
// and App.ReloadModules calls Reload with the module's fresh section.

// Configurable modules decode their section of the "modules" map.
// Configure is skipped when the section is absent.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules fill defaults and publish services (a notion.Client,
// a journal, a summarizer) on the shared AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their decoded settings. Validate must not touch
// the network.
type Validator interface {
	Validate() error
}

// Starter modules open connections or spawn background work.
type Starter interface {
	Start() error
}

// Stopper modules release what Start (or Provision) acquired.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader modules accept a new section of the configuration while the
// process keeps running. A nil node means the section was emptied.
//
// Reload must apply the whole section or nothing: when it returns an error
// the module keeps serving with its previous settings. Services it
// published during Provision stay registered, so a reload may change a
// client's credentials or model but never the identity of the service.
type Reloader interface {
	Reload(node *yaml.Node) error
}
