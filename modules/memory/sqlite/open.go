package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Open opens the database at path and returns a Repository backed by it.
// The caller closes the repository when done.
//
// Missing parent directories are created, the schema is migrated, and the
// pool is limited to one connection since SQLite serialises writes.
func Open(ctx context.Context, path string, cfg Config) (*Repository, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous=" + strings.ToUpper(cfg.Synchronous),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}
