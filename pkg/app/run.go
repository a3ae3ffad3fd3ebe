// Package app provides the shared entry point for the memoryd binary:
// configuration loading, logger setup and assembly of the memory subsystem.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillminer/memoryd/internal/config"
	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/observability"
	"github.com/skillminer/memoryd/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides data_dir from the configuration.
	DataDir string

	// LogLevel overrides log.level from the configuration.
	LogLevel string
}

// LoadConfig resolves, loads, overrides and validates the configuration.
// It returns the path actually used.
func LoadConfig(params RunParams) (*config.Config, string, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}
	if params.DataDir != "" {
		cfg.DataDir = params.DataDir
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// Run loads configuration, assembles and starts the memory subsystem, and
// blocks until ctx is cancelled or a shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params)
	if err != nil {
		return err
	}

	redactor := security.NewRedactor()
	for _, secret := range ConfigSecrets(cfg) {
		redactor.AddLiteral(secret)
	}
	logger, err := NewLogger(os.Stderr, cfg.Log, redactor)
	if err != nil {
		return err
	}
	logger.Info("starting memoryd",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"data_dir", cfg.DataDir,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, params.Version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	rt, err := Assemble(cfg, logger)
	if err != nil {
		return err
	}
	return rt.App.Run(ctx)
}

// NewLogger builds the root logger described by cfg. Every record passes
// through the redacting handler before it is written to w.
func NewLogger(w io.Writer, cfg config.LogConfig, redactor *security.Redactor) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("%w: log level %q", memory.ErrConfiguration, cfg.Level)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		inner = slog.NewTextHandler(w, opts)
	case "json":
		inner = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: log format %q", memory.ErrConfiguration, cfg.Format)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// ConfigSecrets returns the secret values found in the modules section, so
// they are masked even when a driver or SDK echoes them in an error.
func ConfigSecrets(cfg *config.Config) []string {
	doc := make(map[string]any, len(cfg.Modules))
	for id, node := range cfg.Modules {
		var v any
		if err := node.Decode(&v); err == nil {
			doc[id] = v
		}
	}
	return security.CollectSecrets(doc)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/memoryd/memoryd.yaml → ~/.config/memoryd/memoryd.yaml → ./memoryd.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "memoryd", "memoryd.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "memoryd", "memoryd.yaml"))
	}

	candidates = append(candidates, "memoryd.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
