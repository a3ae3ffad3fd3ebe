package ctxengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skillminer/memoryd/internal/memory"
)

// ErrCompactionFailed indicates that compaction could not produce a summary.
var ErrCompactionFailed = errors.New("ctxengine: compaction failed")

// Compaction is the outcome of a successful compaction. It replaces the
// buffer wholesale; nothing is applied when Compact returns an error.
type Compaction struct {
	Summary  string
	Retained []memory.Turn
	Folded   int
}

// Compactor folds the oldest turns of a buffer into its rolling summary.
type Compactor struct {
	summarizer memory.Summarizer
	estimator  TokenEstimator
	config     Config
}

// NewCompactor creates a Compactor. A nil summarizer falls back to the
// extractive summarizer; a nil estimator to a 4 chars-per-token estimate.
func NewCompactor(summarizer memory.Summarizer, estimator TokenEstimator, cfg Config) *Compactor {
	if estimator == nil {
		estimator = NewCharEstimator(4)
	}
	if summarizer == nil {
		summarizer = NewExtractiveSummarizer(0)
	}
	return &Compactor{
		summarizer: summarizer,
		estimator:  estimator,
		config:     cfg.withDefaults(),
	}
}

// Config returns the effective bounds.
func (c *Compactor) Config() Config { return c.config }

// Estimator returns the token estimator used for bounds checks.
func (c *Compactor) Estimator() TokenEstimator { return c.estimator }

// ShouldCompact reports whether the buffer exceeds either bound.
func (c *Compactor) ShouldCompact(turns []memory.Turn, summary string) bool {
	return len(turns) > c.config.MaxMessages ||
		EstimateState(c.estimator, turns, summary) > c.config.MaxTokens
}

// Compact summarizes every turn except the most recent ones together with the
// prior summary. The retained tail holds at most RetainRecent turns and
// shrinks further while it alone would crowd out the summary. The returned
// summary is truncated so the whole buffer fits MaxTokens.
//
// Compact never mutates turns. On error, or when ctx is done before the
// summary is ready, the caller must keep its buffer unchanged.
func (c *Compactor) Compact(ctx context.Context, turns []memory.Turn, prior string) (Compaction, error) {
	retain := c.retainCount(turns)
	old := turns[:len(turns)-retain]
	tail := turns[len(turns)-retain:]

	summary := prior
	if len(old) > 0 {
		var err error
		summary, err = c.summarizer.Summarize(ctx, FormatTranscript(old), prior)
		if err != nil {
			return Compaction{}, fmt.Errorf("%w: %w", ErrCompactionFailed, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return Compaction{}, fmt.Errorf("%w: %w", ErrCompactionFailed, err)
	}

	budget := c.config.MaxTokens - EstimateTurns(c.estimator, tail)
	summary = TruncateToTokens(c.estimator, strings.TrimSpace(summary), budget)

	retained := make([]memory.Turn, len(tail))
	copy(retained, tail)
	return Compaction{Summary: summary, Retained: retained, Folded: len(old)}, nil
}

func (c *Compactor) retainCount(turns []memory.Turn) int {
	retain := min(c.config.RetainRecent, len(turns))
	tailBudget := c.config.MaxTokens - c.config.summaryReserve()
	for retain > 0 && EstimateTurns(c.estimator, turns[len(turns)-retain:]) > tailBudget {
		retain--
	}
	return retain
}

// FormatTranscript renders turns as "User: ..." / "Assistant: ..." paragraphs.
func FormatTranscript(turns []memory.Turn) string {
	var b strings.Builder
	for i := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(turns[i].Role.Label())
		b.WriteString(": ")
		b.WriteString(turns[i].Text)
	}
	return b.String()
}
