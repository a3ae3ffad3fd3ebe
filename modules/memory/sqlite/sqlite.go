// Package sqlite implements a persistent SQLite-backed long-term memory
// repository. It uses modernc.org/sqlite (pure Go, no CGO) in WAL mode.
// Similarity ranking happens in process through the ltm scan strategy.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

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

// Module publishes a SQLite Repository as the ltm.repository service.
type Module struct {
	config Config
	logger *slog.Logger
	repo   *Repository
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "memory.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	switch {
	case m.config.Path == "":
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	case !filepath.IsAbs(m.config.Path):
		m.config.Path = filepath.Join(ctx.DataDir, m.config.Path)
	}

	repo, err := Open(context.TODO(), m.config.Path, m.config)
	if err != nil {
		return err
	}
	m.repo = repo

	ctx.RegisterService(ltm.ServiceRepository, ltm.Repository(repo))

	m.logger.Info("sqlite memory module provisioned",
		"path", m.config.Path,
		"wal", m.config.walEnabled(),
		"busy_timeout", m.config.BusyTimeout,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.repo.Ping(context.TODO()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.repo == nil {
		return nil
	}
	m.logger.Info("sqlite memory module stopping")
	err := m.repo.Close()
	m.repo = nil
	return err
}

// Repository returns the underlying repository.
func (m *Module) Repository() *Repository {
	return m.repo
}
