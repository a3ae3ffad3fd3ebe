package memory

import "context"

// Summarizer condenses text, folding in an earlier summary when one exists.
type Summarizer interface {
	Summarize(ctx context.Context, text, priorSummary string) (string, error)
}

// Embedder maps text to a fixed-dimension vector. Changing the dimension
// invalidates every stored vector; records must then be re-embedded.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EntityExtractor pulls categorized entities out of text. An empty result is
// valid and callers never fail a turn because of an extraction error.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) (Entities, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, text, priorSummary string) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, text, priorSummary string) (string, error) {
	return f(ctx, text, priorSummary)
}

// ExtractorFunc adapts a function to EntityExtractor.
type ExtractorFunc func(ctx context.Context, text string) (Entities, error)

// ExtractEntities calls f.
func (f ExtractorFunc) ExtractEntities(ctx context.Context, text string) (Entities, error) {
	return f(ctx, text)
}

// NopExtractor never finds anything.
type NopExtractor struct{}

var _ EntityExtractor = NopExtractor{}

// ExtractEntities returns an empty map.
func (NopExtractor) ExtractEntities(context.Context, string) (Entities, error) {
	return Entities{}, nil
}

// Service names under which modules publish capabilities.
const (
	ServiceEmbedder  = "memory.embedder"
	ServiceExtractor = "memory.extractor"
)
