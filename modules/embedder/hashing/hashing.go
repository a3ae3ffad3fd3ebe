// Package hashing provides the embedder.hashing module: an offline
// feature-hashing embedder for deployments without an embedding API.
package hashing

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/embedding"
	"github.com/skillminer/memoryd/internal/memory"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Config holds the hashing embedder settings.
type Config struct {
	Dimensions int `yaml:"dimensions"`
}

// Module publishes a hashing embedder as memory.embedder.
type Module struct {
	config   Config
	embedder *embedding.Hashing
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "embedder.hashing",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("embedder.hashing: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.embedder = embedding.NewHashing(m.config.Dimensions)
	ctx.RegisterService(memory.ServiceEmbedder, memory.Embedder(m.embedder))
	ctx.Logger.Info("hashing embedder provisioned", "dimensions", m.embedder.Dimensions())
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.Dimensions < 0 {
		return fmt.Errorf("embedder.hashing: dimensions must be positive, got %d", m.config.Dimensions)
	}
	return nil
}
