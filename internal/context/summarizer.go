package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/provider"
)

// DefaultExtractiveSentences is how many sentences the extractive summarizer
// takes from each folded segment.
const DefaultExtractiveSentences = 5

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// SplitSentences splits text on runs of '.', '!' and '?' and drops blanks.
func SplitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExtractiveSummarizer keeps the leading sentences of each folded segment.
// It needs no model and never fails, which makes it the fallback for every
// other summarizer.
type ExtractiveSummarizer struct {
	sentences int
}

var _ memory.Summarizer = (*ExtractiveSummarizer)(nil)

// NewExtractiveSummarizer keeps n sentences per segment; n <= 0 means
// DefaultExtractiveSentences.
func NewExtractiveSummarizer(n int) *ExtractiveSummarizer {
	if n <= 0 {
		n = DefaultExtractiveSentences
	}
	return &ExtractiveSummarizer{sentences: n}
}

// Summarize appends the first sentences of text to the prior summary.
// The result keeps at most twice the per-segment sentence count, dropping
// the oldest sentences first.
func (s *ExtractiveSummarizer) Summarize(ctx context.Context, text, prior string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	next := SplitSentences(text)
	if len(next) > s.sentences {
		next = next[:s.sentences]
	}
	all := append(SplitSentences(prior), next...)
	if limit := 2 * s.sentences; len(all) > limit {
		all = all[len(all)-limit:]
	}
	if len(all) == 0 {
		return strings.TrimSpace(text), nil
	}
	return strings.Join(all, ". ") + ".", nil
}

const summaryPrompt = `You maintain a running summary of a conversation between a user and an assistant.
Fold the new messages into the existing summary. Keep facts about the user
(skills, roles, companies, goals, preferences) and open questions. Drop
greetings and filler. Answer with the updated summary only, in at most %d words.

Existing summary:
%s

New messages:
%s`

// ProviderSummarizer asks an LLM to fold new turns into the rolling summary.
type ProviderSummarizer struct {
	provider  provider.Provider
	maxTokens int
}

var _ memory.Summarizer = (*ProviderSummarizer)(nil)

// NewProviderSummarizer creates a summarizer whose replies are capped at
// maxTokens (200 when <= 0).
func NewProviderSummarizer(p provider.Provider, maxTokens int) *ProviderSummarizer {
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &ProviderSummarizer{provider: p, maxTokens: maxTokens}
}

// Summarize calls the provider once. An empty reply is an error.
func (s *ProviderSummarizer) Summarize(ctx context.Context, text, prior string) (string, error) {
	if prior == "" {
		prior = "(none)"
	}
	resp, err := s.provider.Complete(ctx,
		provider.Prompt(fmt.Sprintf(summaryPrompt, s.maxTokens*3/4, prior, text), s.maxTokens))
	if err != nil {
		return "", fmt.Errorf("ctxengine: summarize via %s: %w", s.provider.ModelName(), err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", errors.New("ctxengine: provider returned an empty summary")
	}
	return summary, nil
}

// FallbackSummarizer tries Primary and, when it fails for any reason other
// than cancellation, uses Fallback.
type FallbackSummarizer struct {
	Primary  memory.Summarizer
	Fallback memory.Summarizer

	// OnFallback, when set, is called with the primary's error.
	OnFallback func(ctx context.Context, err error)
}

var _ memory.Summarizer = (*FallbackSummarizer)(nil)

// Summarize implements memory.Summarizer.
func (s *FallbackSummarizer) Summarize(ctx context.Context, text, prior string) (string, error) {
	summary, err := s.Primary.Summarize(ctx, text, prior)
	if err == nil {
		return summary, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	if s.OnFallback != nil {
		s.OnFallback(ctx, err)
	}
	return s.Fallback.Summarize(ctx, text, prior)
}
