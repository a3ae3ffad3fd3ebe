package openai

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/provider"
)

func TestModuleInfo(t *testing.T) {
	p := &Provider{}
	info := p.ModuleInfo()

	if info.ID != "provider.openai" {
		t.Errorf("expected ID provider.openai, got %s", info.ID)
	}
	if _, ok := info.New().(*Provider); !ok {
		t.Errorf("New() returned %T, want *Provider", info.New())
	}
}

func TestConfigure_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	p := &Provider{}

	node := yamlNode(t, `
api_key: sk-test
model: gpt-4o-mini
`)
	if err := p.Configure(node); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}

	if p.config.BaseURL != defaultBaseURL {
		t.Errorf("base_url = %q, want default", p.config.BaseURL)
	}
	if p.config.Timeout != "30s" {
		t.Errorf("timeout = %q, want 30s", p.config.Timeout)
	}
	if p.config.Dimensions != 0 {
		t.Errorf("dimensions = %d, want 0 without embedding model", p.config.Dimensions)
	}
}

func TestConfigure_EmbeddingDefaults(t *testing.T) {
	p := &Provider{}
	node := yamlNode(t, `
api_key: sk-test
embedding_model: text-embedding-3-small
`)
	if err := p.Configure(node); err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	if p.config.Dimensions != defaultDimensions {
		t.Errorf("dimensions = %d, want %d", p.config.Dimensions, defaultDimensions)
	}
}

func TestConfigure_APIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	p := &Provider{}
	if err := p.Configure(yamlNode(t, "model: gpt-4o")); err != nil {
		t.Fatal(err)
	}
	if p.config.APIKey != "sk-env" {
		t.Errorf("api_key = %q, want sk-env", p.config.APIKey)
	}
}

func TestConfigure_InvalidYAML(t *testing.T) {
	p := &Provider{}
	node := yamlNode(t, `temperature: "not-a-number"`)
	if err := p.Configure(node); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestProvision_RegistersServices(t *testing.T) {
	tests := []struct {
		name         string
		config       Config
		wantProvider bool
		wantEmbedder bool
	}{
		{"chat only", Config{APIKey: "k", Model: "gpt-4o"}, true, false},
		{"embeddings only", Config{APIKey: "k", EmbeddingModel: "text-embedding-3-small"}, false, true},
		{"both", Config{APIKey: "k", Model: "gpt-4o", EmbeddingModel: "text-embedding-3-large", Dimensions: 256}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Provider{config: tt.config}
			ctx := core.NewAppContext(nil, t.TempDir())
			if err := p.Provision(ctx); err != nil {
				t.Fatalf("Provision() error: %v", err)
			}

			_, err := core.Lookup[provider.Provider](ctx, provider.ServiceName)
			if (err == nil) != tt.wantProvider {
				t.Errorf("provider registered = %v, want %v", err == nil, tt.wantProvider)
			}
			emb, err := core.Lookup[memory.Embedder](ctx, memory.ServiceEmbedder)
			if (err == nil) != tt.wantEmbedder {
				t.Errorf("embedder registered = %v, want %v", err == nil, tt.wantEmbedder)
			}
			if emb != nil && emb.Dimensions() != p.config.Dimensions {
				t.Errorf("Dimensions() = %d, want %d", emb.Dimensions(), p.config.Dimensions)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"ok", Config{APIKey: "sk", Model: "gpt-4o", Timeout: "30s"}, false},
		{"embeddings only", Config{APIKey: "sk", EmbeddingModel: "e", Timeout: "30s"}, false},
		{"missing api key", Config{Model: "gpt-4o", Timeout: "30s"}, true},
		{"no model at all", Config{APIKey: "sk", Timeout: "30s"}, true},
		{"invalid timeout", Config{APIKey: "sk", Model: "gpt-4o", Timeout: "soon"}, true},
		{"negative dimensions", Config{APIKey: "sk", EmbeddingModel: "e", Timeout: "30s", Dimensions: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Provider{config: tt.config}
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// yamlNode is a test helper that parses a YAML string into a *yaml.Node.
func yamlNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(s), &node); err != nil {
		t.Fatalf("failed to parse test YAML: %v", err)
	}
	// yaml.Unmarshal wraps the document in a document node.
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
