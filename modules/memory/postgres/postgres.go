// Package postgres implements a PostgreSQL long-term memory repository with
// a pgvector similarity index, using jackc/pgx.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/ltm"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module publishes the Postgres repository as ltm.repository and, unless
// disabled, its pgvector index as ltm.index.
type Module struct {
	config Config
	logger *slog.Logger
	repo   *Repository
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.postgres",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("postgres: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	if err := m.config.validate(); err != nil {
		return err
	}

	repo, err := Open(context.TODO(), m.config)
	if err != nil {
		return err
	}
	m.repo = repo

	ctx.RegisterService(ltm.ServiceRepository, ltm.Repository(repo))
	if m.config.indexEnabled() {
		ctx.RegisterService(ltm.ServiceIndex, ltm.Index(repo.Index()))
	}

	m.logger.Info("postgres memory module provisioned",
		"table", m.config.Table,
		"dimensions", m.config.Dimensions,
		"index", m.config.indexEnabled(),
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.repo.Ping(context.TODO()); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.repo != nil {
		m.logger.Info("postgres memory module stopping")
		m.repo.Close()
		m.repo = nil
	}
	return nil
}

// Dimensions returns the configured vector size.
func (m *Module) Dimensions() int {
	return m.config.Dimensions
}
