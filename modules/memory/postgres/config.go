package postgres

import (
	"errors"
	"fmt"
	"os"
)

const (
	defaultDimensions = 1536
	defaultTable      = "ltm_records"
)

// Config holds the Postgres repository configuration.
type Config struct {
	// DSN is the connection string. Falls back to $DATABASE_URL.
	DSN string `yaml:"dsn"`

	// Dimensions fixes the vector column size. It must equal the embedder's
	// dimension; changing it requires re-embedding every record.
	Dimensions int `yaml:"dimensions"`

	// Table is the records table name. Defaults to ltm_records.
	Table string `yaml:"table"`

	// Index publishes pgvector similarity search as the ltm.index service.
	// Defaults to true.
	Index *bool `yaml:"index"`

	// MaxConns caps the connection pool. Zero keeps the pgx default.
	MaxConns int32 `yaml:"max_conns"`
}

func (c *Config) defaults() {
	if c.DSN == "" {
		c.DSN = os.Getenv("DATABASE_URL")
	}
	if c.Dimensions == 0 {
		c.Dimensions = defaultDimensions
	}
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Index == nil {
		t := true
		c.Index = &t
	}
}

func (c *Config) indexEnabled() bool {
	return c.Index == nil || *c.Index
}

func (c *Config) validate() error {
	if c.DSN == "" {
		return errors.New("postgres: dsn is required")
	}
	if c.Dimensions < 1 {
		return fmt.Errorf("postgres: dimensions must be positive, got %d", c.Dimensions)
	}
	if !validIdent(c.Table) {
		return fmt.Errorf("postgres: invalid table name %q", c.Table)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("postgres: max_conns must be non-negative, got %d", c.MaxConns)
	}
	return nil
}

func validIdent(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
