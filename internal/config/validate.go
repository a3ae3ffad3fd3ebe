package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/memory"
)

// repositoryModules publish ltm.repository; at most one may be configured.
var repositoryModules = []string{"memory.sqlite", "memory.postgres"}

// Validate checks the structural validity of a Config and the bounds of
// every memory tunable. All problems are reported together, each wrapping
// memory.ErrConfiguration.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{memory.ErrConfiguration}, args...)...))
	}

	if cfg.Version == "" {
		add("version field is required")
	} else if cfg.Version != "1" {
		add("unsupported version %q (supported: \"1\")", cfg.Version)
	}

	if cfg.ShutdownTimeout < 0 {
		add("shutdown_timeout %s must not be negative", cfg.ShutdownTimeout)
	}

	if len(cfg.Modules) == 0 {
		add("at least one module must be configured")
	}
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			add("unknown module %q", id)
		}
	}
	var repos []string
	for _, id := range repositoryModules {
		if _, ok := cfg.Modules[id]; ok {
			repos = append(repos, id)
		}
	}
	if len(repos) > 1 {
		add("only one repository module may be configured, got %v", repos)
	}

	s := cfg.Memory.STM
	if s.MaxMessages < 1 {
		add("stm.max_messages %d must be at least 1", s.MaxMessages)
	}
	if s.MaxTokens < 1 {
		add("stm.max_tokens %d must be at least 1", s.MaxTokens)
	}
	if s.RetainRecent < 1 || s.RetainRecent >= s.MaxMessages {
		add("stm.retain_recent %d must be in [1, max_messages)", s.RetainRecent)
	}
	if s.SessionTTL <= 0 {
		add("stm.session_ttl %v must be positive", s.SessionTTL)
	}
	if !slices.Contains([]string{"chars", "words", "tiktoken"}, s.Estimator) {
		add("stm.estimator %q must be chars, words or tiktoken", s.Estimator)
	}

	l := cfg.Memory.LTM
	if l.TopK < 1 {
		add("ltm.top_k %d must be at least 1", l.TopK)
	}
	if t := l.Threshold(); t < 0 || t > 1 {
		add("ltm.similarity_threshold %v outside [0,1]", t)
	}
	if l.ScanLimit < 0 {
		add("ltm.scan_limit %d must not be negative", l.ScanLimit)
	}
	if l.EmbeddingDimensions < 1 {
		add("ltm.embedding_dimensions %d must be at least 1", l.EmbeddingDimensions)
	}
	if !slices.Contains([]string{"keyword", "provider", "chain"}, l.Extractor) {
		add("ltm.extractor %q must be keyword, provider or chain", l.Extractor)
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Log.Level) {
		add("log.level %q must be debug, info, warn or error", cfg.Log.Level)
	}
	if !slices.Contains([]string{"text", "json"}, cfg.Log.Format) {
		add("log.format %q must be text or json", cfg.Log.Format)
	}
	if r := cfg.Tracing.SampleRatio; r < 0 || r > 1 {
		add("tracing.sample_ratio %v outside [0,1]", r)
	}

	return errors.Join(errs...)
}
