// Package openai implements the provider.openai module on top of the
// official openai-go SDK. It serves chat completions for summarization and
// entity extraction, and text embeddings for long-term memory.
package openai

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/provider"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ memory.Embedder        = (*Embedder)(nil)
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
)

// Provider wraps an OpenAI client.
type Provider struct {
	config   Config
	logger   *slog.Logger
	client   openai.Client
	embedder *Embedder
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.openai: decode config: %w", err)
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner. The completion side is published
// when a chat model is configured, the embedder when an embedding model is.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger
	p.client = newClient(p.config)

	if p.config.Model != "" {
		ctx.RegisterService(provider.ServiceName, provider.Provider(p))
	}
	if p.config.EmbeddingModel != "" {
		p.embedder = &Embedder{
			client:     p.client,
			model:      p.config.EmbeddingModel,
			dimensions: p.config.Dimensions,
		}
		ctx.RegisterService(memory.ServiceEmbedder, memory.Embedder(p.embedder))
	}

	p.logger.Info("openai provider provisioned",
		"model", p.config.Model,
		"embedding_model", p.config.EmbeddingModel,
		"dimensions", p.config.Dimensions,
	)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Embedder returns the embedder, or nil when no embedding model is set.
func (p *Provider) Embedder() *Embedder {
	return p.embedder
}

func newClient(cfg Config) openai.Client {
	base := cfg.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
		option.WithRequestTimeout(cfg.parsedTimeout()),
		option.WithMaxRetries(cfg.MaxRetries),
	)
}
