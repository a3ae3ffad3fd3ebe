// Package core provides the module system memoryd is assembled from:
// a compile-time registry, a lifecycle, and a service registry modules use
// to publish repositories, embedders and providers to each other.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModule is returned when a configuration names a module that is
// not compiled into the binary.
var ErrUnknownModule = errors.New("unknown module")

// AppContext is handed to every module during Provision. Module-scoped
// copies share the service registry.
type AppContext struct {
	// Logger carries a "module" attribute inside a module-scoped copy.
	Logger *slog.Logger

	// DataDir is where file-backed modules (sqlite, audit log) keep data.
	DataDir string

	root          *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *services
}

// NewAppContext creates a root context. A nil logger means slog.Default.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: newServices(),
	}
}

// WithModuleConfigs returns a copy that hands each module its section of
// configs. The copy shares the service registry with ctx.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns a copy scoped to one module.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// LoadModule instantiates a compiled-in module and runs
// Configure, Provision and Validate on it.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	start := time.Now()
	mod := info.New()

	if node, exists := ctx.moduleConfigs[id]; exists {
		c, ok := mod.(Configurable)
		switch {
		case ok:
			if err := c.Configure(&node); err != nil {
				return nil, fmt.Errorf("configuring module %s: %w", id, err)
			}
		case len(node.Content) > 0:
			return nil, fmt.Errorf("module %s takes no configuration", id)
		}
	}

	scoped := ctx.ForModule(info.ID)
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(scoped); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}

	scoped.Logger.Debug("module provisioned", "duration", time.Since(start))
	return mod, nil
}
