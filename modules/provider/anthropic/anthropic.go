// Package anthropic registers provider.anthropic: the Messages API as the
// LLM behind conversation summaries and entity extraction.
package anthropic

import (
	"fmt"
	"log/slog"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/provider"
)

func init() {
	core.RegisterModule(&Anthropic{})
}

var (
	_ core.Configurable      = (*Anthropic)(nil)
	_ core.Provisioner       = (*Anthropic)(nil)
	_ core.Validator         = (*Anthropic)(nil)
	_ provider.Provider      = (*Anthropic)(nil)
	_ provider.HealthChecker = (*Anthropic)(nil)
)

// Anthropic publishes itself as the provider.llm service.
type Anthropic struct {
	config Config
	client *sdkanthropic.Client
	logger *slog.Logger
}

func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return &Anthropic{} },
	}
}

func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return fmt.Errorf("provider.anthropic: %w", err)
	}
	return nil
}

// Provision builds the SDK client. A missing key is reported by Validate
// so "memoryd config check" lists it with the other problems.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.config.defaults()
	a.logger = ctx.Logger

	opts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithRequestTimeout(a.config.Timeout),
	}
	if key, err := a.config.apiKey(); err == nil {
		opts = append(opts, option.WithAPIKey(key))
	}
	if a.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.config.BaseURL))
	}
	client := sdkanthropic.NewClient(opts...)
	a.client = &client

	ctx.RegisterService(provider.ServiceName, provider.Provider(a))
	a.logger.Info("llm provider ready", "model", a.config.Model, "timeout", a.config.Timeout)
	return nil
}

func (a *Anthropic) Validate() error {
	return a.config.validate()
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}
