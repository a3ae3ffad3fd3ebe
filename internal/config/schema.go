// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for memoryd.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/observability"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds persistent module data (SQLite file, chromem
	// collections, audit log). Defaults to DefaultDataDir().
	DataDir string `yaml:"data_dir"`

	// ShutdownTimeout bounds how long modules get to stop after SIGTERM.
	// Zero means 30s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Memory  MemoryConfig                `yaml:"memory"`
	Log     LogConfig                   `yaml:"log"`
	Tracing observability.TracingConfig `yaml:"tracing"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "memory.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// MemoryConfig holds the tunables of the memory subsystem.
type MemoryConfig struct {
	STM  STMConfig  `yaml:"stm"`
	LTM  LTMConfig  `yaml:"ltm"`
	Cron CronConfig `yaml:"cron"`
}

// STMConfig bounds every short-term session buffer.
type STMConfig struct {
	MaxMessages  int           `yaml:"max_messages"`
	MaxTokens    int           `yaml:"max_tokens"`
	RetainRecent int           `yaml:"retain_recent"`
	SessionTTL   time.Duration `yaml:"session_ttl"`

	// Estimator is "chars" (default), "words" or "tiktoken".
	Estimator string `yaml:"estimator"`

	// SummaryMaxTokens bounds the LLM summary output.
	SummaryMaxTokens int `yaml:"summary_max_tokens"`

	// SummarySentences is the sentence count of the extractive fallback.
	SummarySentences int `yaml:"summary_sentences"`
}

// LTMConfig tunes long-term storage and retrieval.
type LTMConfig struct {
	TopK int `yaml:"top_k"`

	// SimilarityThreshold is a pointer so an explicit 0 is kept.
	SimilarityThreshold *float64 `yaml:"similarity_threshold"`

	// ScanLimit caps the fallback scan per owner; 0 scans everything.
	ScanLimit int `yaml:"scan_limit"`

	// EmbeddingDimensions is used by the hashing embedder when no embedder
	// module is configured.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// EmbeddingCacheSize is the number of query embeddings kept in memory.
	// Negative disables the cache.
	EmbeddingCacheSize int64 `yaml:"embedding_cache_size"`

	// Extractor is "keyword", "provider" or "chain" (default).
	Extractor string `yaml:"extractor"`
}

// CronConfig schedules the maintenance jobs. Empty values use each job's default.
type CronConfig struct {
	SessionSweep      string `yaml:"session_sweep"`
	EmbeddingBackfill string `yaml:"embedding_backfill"`
	BackfillBatch     int    `yaml:"backfill_batch"`
}

// LogConfig selects the root log handler.
type LogConfig struct {
	// Level is debug, info (default), warn or error.
	Level string `yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format"`
}

// Defaults for the memory tunables.
const (
	DefaultMaxMessages         = 15
	DefaultMaxTokens           = 500
	DefaultRetainRecent        = 4
	DefaultSessionTTL          = 30 * time.Minute
	DefaultTopK                = 5
	DefaultSimilarityThreshold = 0.7
	DefaultEmbeddingDimensions = 1536
	DefaultEmbeddingCacheSize  = 10_000
	DefaultSummaryMaxTokens    = 256
	DefaultSummarySentences    = 3
)

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}

	s := &c.Memory.STM
	if s.MaxMessages == 0 {
		s.MaxMessages = DefaultMaxMessages
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.RetainRecent == 0 {
		s.RetainRecent = DefaultRetainRecent
	}
	if s.SessionTTL == 0 {
		s.SessionTTL = DefaultSessionTTL
	}
	if s.Estimator == "" {
		s.Estimator = "chars"
	}
	if s.SummaryMaxTokens == 0 {
		s.SummaryMaxTokens = DefaultSummaryMaxTokens
	}
	if s.SummarySentences == 0 {
		s.SummarySentences = DefaultSummarySentences
	}

	l := &c.Memory.LTM
	if l.TopK == 0 {
		l.TopK = DefaultTopK
	}
	if l.SimilarityThreshold == nil {
		v := DefaultSimilarityThreshold
		l.SimilarityThreshold = &v
	}
	if l.EmbeddingDimensions == 0 {
		l.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if l.EmbeddingCacheSize == 0 {
		l.EmbeddingCacheSize = DefaultEmbeddingCacheSize
	}
	if l.Extractor == "" {
		l.Extractor = "chain"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Threshold returns the effective similarity threshold.
func (l LTMConfig) Threshold() float64 {
	if l.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *l.SimilarityThreshold
}

// DefaultDataDir returns $XDG_DATA_HOME/memoryd if set, otherwise
// ~/.local/share/memoryd per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "memoryd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "memoryd")
}
