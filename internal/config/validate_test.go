package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/memory"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

// registerStub registers id unless a previous run already did.
func registerStub(t *testing.T, id string) {
	t.Helper()
	if _, ok := core.GetModule(id); !ok {
		core.RegisterModule(&stubModule{id: id})
	}
}

// validConfig returns a defaulted config with one registered module.
func validConfig(t *testing.T) *Config {
	t.Helper()
	id := t.Name() + ".mod"
	registerStub(t, id)
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{id: {}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Version(t *testing.T) {
	cfg := validConfig(t)
	cfg.Version = ""
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "version") {
		t.Fatalf("missing version: %v", err)
	}

	cfg.Version = "99"
	err = Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("unsupported version: %v", err)
	}
}

func TestValidate_Modules(t *testing.T) {
	cfg := &Config{Version: "1", Modules: map[string]yaml.Node{}}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "at least one") {
		t.Errorf("empty modules: %v", err)
	}

	cfg.Modules = map[string]yaml.Node{"bad.one": {}, "bad.two": {}}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "bad.one") || !strings.Contains(err.Error(), "bad.two") {
		t.Errorf("unknown modules: %v", err)
	}
}

func TestValidate_SingleRepository(t *testing.T) {
	registerStub(t, "memory.sqlite")
	registerStub(t, "memory.postgres")
	cfg := &Config{Version: "1", Modules: map[string]yaml.Node{"memory.sqlite": {}, "memory.postgres": {}}}
	cfg.ApplyDefaults()

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "only one repository") {
		t.Errorf("two repositories: %v", err)
	}
}

func TestValidate_MemoryBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"threshold above 1", func(c *Config) { v := 1.5; c.Memory.LTM.SimilarityThreshold = &v }, "similarity_threshold"},
		{"threshold below 0", func(c *Config) { v := -0.1; c.Memory.LTM.SimilarityThreshold = &v }, "similarity_threshold"},
		{"max messages", func(c *Config) { c.Memory.STM.MaxMessages = -1 }, "max_messages"},
		{"max tokens", func(c *Config) { c.Memory.STM.MaxTokens = -5 }, "max_tokens"},
		{"retain equals max", func(c *Config) { c.Memory.STM.RetainRecent = c.Memory.STM.MaxMessages }, "retain_recent"},
		{"ttl", func(c *Config) { c.Memory.STM.SessionTTL = -time.Second }, "session_ttl"},
		{"top k", func(c *Config) { c.Memory.LTM.TopK = -1 }, "top_k"},
		{"dimensions", func(c *Config) { c.Memory.LTM.EmbeddingDimensions = -1 }, "embedding_dimensions"},
		{"estimator", func(c *Config) { c.Memory.STM.Estimator = "bytes" }, "estimator"},
		{"extractor", func(c *Config) { c.Memory.LTM.Extractor = "regex" }, "extractor"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "sample_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, memory.ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_ZeroThresholdAllowed(t *testing.T) {
	cfg := validConfig(t)
	zero := 0.0
	cfg.Memory.LTM.SimilarityThreshold = &zero
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("threshold 0 should be valid: %v", err)
	}
	if cfg.Memory.LTM.Threshold() != 0 {
		t.Errorf("explicit 0 replaced by default: %v", cfg.Memory.LTM.Threshold())
	}
}

func TestResolve_Order(t *testing.T) {
	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http":       {},
		"provider.anthropic": {},
		"memory.sqlite":      {},
		"index.chromem":      {},
	}}
	got := strings.Join(Resolve(cfg), ",")
	want := "memory.sqlite,index.chromem,provider.anthropic,gateway.http"
	if got != want {
		t.Errorf("Resolve = %s, want %s", got, want)
	}
}

func TestValidate_ShutdownTimeout(t *testing.T) {
	cfg := validConfig(t)
	cfg.ShutdownTimeout = -time.Second
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "shutdown_timeout") {
		t.Fatalf("negative shutdown timeout: %v", err)
	}
}
