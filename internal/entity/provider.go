package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/provider"
)

const extractPrompt = `Extract entities from the message below. Reply with a single JSON object
whose keys are among "skills", "companies", "roles", "locations", "other" and
whose values are arrays of strings. Use an empty object when nothing applies.
Do not add any prose.

Message:
%s`

// ProviderExtractor asks an LLM for entities as JSON. The reply is validated
// against the fixed category schema; unknown keys land in "other".
type ProviderExtractor struct {
	provider  provider.Provider
	maxTokens int
}

var _ memory.EntityExtractor = (*ProviderExtractor)(nil)

// NewProviderExtractor creates an extractor using p.
func NewProviderExtractor(p provider.Provider, maxTokens int) *ProviderExtractor {
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &ProviderExtractor{provider: p, maxTokens: maxTokens}
}

// ExtractEntities implements memory.EntityExtractor.
func (x *ProviderExtractor) ExtractEntities(ctx context.Context, text string) (memory.Entities, error) {
	if strings.TrimSpace(text) == "" {
		return memory.Entities{}, nil
	}
	resp, err := x.provider.Complete(ctx,
		provider.Prompt(fmt.Sprintf(extractPrompt, text), x.maxTokens).Deterministic())
	if err != nil {
		return nil, fmt.Errorf("entity: extract via %s: %w", x.provider.ModelName(), err)
	}
	return ParseEntitiesJSON(resp.Content)
}

// ParseEntitiesJSON decodes an LLM reply into Entities. Code fences and
// surrounding prose are tolerated; scalar values are accepted as one-item
// lists.
func ParseEntitiesJSON(reply string) (memory.Entities, error) {
	start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, errors.New("entity: reply contains no JSON object")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("entity: decoding reply: %w", err)
	}

	out := memory.Entities{}
	for key, val := range raw {
		cat := memory.Category(key)
		var list []string
		if err := json.Unmarshal(val, &list); err == nil {
			out[cat] = append(out[cat], list...)
			continue
		}
		var one string
		if err := json.Unmarshal(val, &one); err == nil {
			out[cat] = append(out[cat], one)
		}
	}
	return out.Normalize(), nil
}
