package openai

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultDimensions     = 1536
)

// Config holds the configuration for the OpenAI module.
type Config struct {
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
	Timeout     string   `yaml:"timeout"`
	MaxRetries  int      `yaml:"max_retries"`

	// EmbeddingModel enables the memory.embedder service when set.
	EmbeddingModel string `yaml:"embedding_model"`

	// Dimensions requests shortened vectors from models that support it.
	Dimensions int `yaml:"dimensions"`
}

// defaults fills zero-valued fields with sensible defaults.
func (c *Config) defaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.EmbeddingModel != "" && c.Dimensions == 0 {
		c.Dimensions = defaultDimensions
	}
}

// parsedTimeout returns the timeout as a time.Duration.
// Assumes the value has been validated.
func (c *Config) parsedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c *Config) validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("provider.openai: api_key is required"))
	}
	if c.Model == "" && c.EmbeddingModel == "" {
		errs = append(errs, errors.New("provider.openai: model or embedding_model is required"))
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("provider.openai: invalid timeout %q: %w", c.Timeout, err))
	}
	if c.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("provider.openai: dimensions must be positive, got %d", c.Dimensions))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("provider.openai: max_retries must be non-negative, got %d", c.MaxRetries))
	}
	return errors.Join(errs...)
}
