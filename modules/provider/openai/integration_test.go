//go:build integration

package openai

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
)

func integrationProvider(t *testing.T, cfg string) *Provider {
	t.Helper()
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}
	p := &Provider{}
	if err := p.Configure(yamlNode(t, "api_key: "+apiKey+"\n"+cfg)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := p.Provision(core.NewAppContext(nil, t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return p
}

// Related turns must land closer together than unrelated ones, otherwise
// the default retrieval threshold is meaningless for this model.
func TestIntegration_EmbeddingsRankRelatedTurns(t *testing.T) {
	p := integrationProvider(t, "embedding_model: text-embedding-3-small\ndimensions: 256")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	embed := func(text string) []float32 {
		vec, err := p.Embedder().Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
		if len(vec) != 256 {
			t.Fatalf("len = %d, want 256", len(vec))
		}
		return vec
	}

	query := embed("Which languages do I know?")
	related := embed("I know Python and SQL")
	unrelated := embed("The weather in Lisbon was sunny yesterday")
	if ltm.Cosine(query, related) <= ltm.Cosine(query, unrelated) {
		t.Errorf("related %.3f <= unrelated %.3f", ltm.Cosine(query, related), ltm.Cosine(query, unrelated))
	}
}

func TestIntegration_StoreAndRetrieve(t *testing.T) {
	p := integrationProvider(t, "model: gpt-4o-mini\nembedding_model: text-embedding-3-small\ndimensions: 256")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := ltm.NewStore(ltm.NewMemoryRepository(), p.Embedder(), ltm.Config{}, ltm.Options{})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := store.Store(ctx, "alice", memory.NewTurn("alice", "s1", memory.RoleUser, "I moved to Lyon last spring"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := store.Retrieve(ctx, "alice", "Where do I live now?", 3, 0.2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) == 0 || got[0].Record.ID != rec.ID {
		t.Errorf("Retrieve = %+v", got)
	}
}
