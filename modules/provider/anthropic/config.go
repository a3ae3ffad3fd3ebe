package anthropic

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/skillminer/memoryd/internal/memory"
)

const (
	// Summaries and entity lists are short; the small model is enough.
	defaultModel     = "claude-3-5-haiku-latest"
	defaultKeyEnv    = "ANTHROPIC_API_KEY"
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 512
)

var errNoAPIKey = errors.New("no api key")

// Config is the provider.anthropic section of memoryd.yaml.
type Config struct {
	// APIKey wins over APIKeyEnv. Prefer the env var; keys in the config
	// file are masked in logs but still sit on disk.
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`

	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	// MaxTokens caps requests that do not set their own limit.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds one request. The SDK does not retry: the summarizer
	// and extractor have local fallbacks and a turn should not wait.
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultKeyEnv
	}
}

// apiKey resolves the key from the config or the environment.
func (c *Config) apiKey() (string, error) {
	if c.APIKey != "" {
		return c.APIKey, nil
	}
	if k := os.Getenv(c.APIKeyEnv); k != "" {
		return k, nil
	}
	return "", fmt.Errorf("%w: set api_key or $%s", errNoAPIKey, c.APIKeyEnv)
}

func (c *Config) validate() error {
	var errs []error
	if c.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	// A custom base URL may be a proxy that injects credentials.
	if _, err := c.apiKey(); err != nil && c.BaseURL == "" {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: provider.anthropic: %w", memory.ErrConfiguration, err)
	}
	return nil
}
