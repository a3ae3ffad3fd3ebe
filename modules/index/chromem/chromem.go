// Package chromem provides the ltm.index service on top of chromem-go, a
// pure Go embedded vector database. Documents can optionally be persisted
// to disk so the index survives restarts without a rebuild.
package chromem

import (
	"fmt"
	"log/slog"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/ltm"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
)

// Config holds the chromem index settings.
type Config struct {
	// Persist writes documents under Path. Defaults to false.
	Persist bool `yaml:"persist"`

	// Path is the persistence directory. Defaults to <data_dir>/chromem.
	Path string `yaml:"path"`

	// Compress gzips persisted documents.
	Compress bool `yaml:"compress"`
}

// Module publishes an Index as the ltm.index service.
type Module struct {
	config Config
	logger *slog.Logger
	index  *Index
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "index.chromem",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("chromem: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger

	db := chromem.NewDB()
	if m.config.Persist {
		if m.config.Path == "" {
			m.config.Path = filepath.Join(ctx.DataDir, "chromem")
		}
		var err error
		db, err = chromem.NewPersistentDB(m.config.Path, m.config.Compress)
		if err != nil {
			return fmt.Errorf("chromem: open %s: %w", m.config.Path, err)
		}
	}
	m.index = NewIndex(db)
	ctx.RegisterService(ltm.ServiceIndex, ltm.Index(m.index))

	m.logger.Info("chromem index provisioned", "persist", m.config.Persist, "path", m.config.Path)
	return nil
}

// Index returns the provisioned index.
func (m *Module) Index() *Index {
	return m.index
}
