package sqlite

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const defaultDBFile = "ltm.db"

// Config is the memory.sqlite section of memoryd.yaml.
type Config struct {
	// Path of the database file. Relative to the data dir when not absolute;
	// empty means {data_dir}/ltm.db.
	Path string `yaml:"path"`

	// WAL lets retrieval scans read while a turn is being persisted.
	// Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is how long a writer waits on a locked database before
	// the store reports a transient failure. Defaults to 5s.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Synchronous is the PRAGMA synchronous level: "normal" (default with
	// WAL) or "full".
	Synchronous string `yaml:"synchronous"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		wal := true
		c.WAL = &wal
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.Synchronous == "" {
		c.Synchronous = "normal"
	}
	c.Synchronous = strings.ToLower(c.Synchronous)
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %s", c.BusyTimeout)
	}
	if !slices.Contains([]string{"normal", "full"}, c.Synchronous) {
		return fmt.Errorf("sqlite: synchronous must be normal or full, got %q", c.Synchronous)
	}
	return nil
}
