package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/skillminer/memoryd/internal/provider"
)

// Embedder calls the OpenAI embeddings endpoint.
type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
}

// Embed returns the embedding of text as float32.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", provider.ErrProviderDown)
	}

	src := resp.Data[0].Embedding
	if e.dimensions > 0 && len(src) != e.dimensions {
		return nil, fmt.Errorf("openai: embedding has %d dimensions, want %d", len(src), e.dimensions)
	}
	vec := make([]float32, len(src))
	for i, f := range src {
		vec[i] = float32(f)
	}
	return vec, nil
}

// Dimensions returns the configured vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
