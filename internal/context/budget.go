package ctxengine

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/skillminer/memoryd/internal/memory"
)

// MessageOverhead is the per-turn token cost of role markers and separators.
const MessageOverhead = 4

// ServiceEstimator is the service under which the configured estimator is published.
const ServiceEstimator = "memory.estimator"

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator estimates tokens using a characters-per-token ratio.
// A ratio of ~4 works well for English.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator creates a CharEstimator with the given ratio.
// If charsPerToken is <= 0, defaults to 4.
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = 4.0
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate returns ceil(len(text) / CharsPerToken).
func (e *CharEstimator) Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / e.CharsPerToken))
}

// WordEstimator counts whitespace-separated words, scaled by TokensPerWord.
type WordEstimator struct {
	TokensPerWord float64
}

// Estimate returns ceil(words * TokensPerWord).
func (e *WordEstimator) Estimate(text string) int {
	ratio := e.TokensPerWord
	if ratio <= 0 {
		ratio = 1.3
	}
	n := len(strings.Fields(text))
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * ratio))
}

// EstimateTurns returns the estimated tokens for a slice of turns.
func EstimateTurns(est TokenEstimator, turns []memory.Turn) int {
	total := 0
	for i := range turns {
		total += MessageOverhead + est.Estimate(turns[i].Text)
	}
	return total
}

// EstimateState returns the estimated tokens of a buffer: its turns plus
// the rolling summary.
func EstimateState(est TokenEstimator, turns []memory.Turn, summary string) int {
	return EstimateTurns(est, turns) + est.Estimate(summary)
}

// TruncateToTokens shortens text so est.Estimate reports at most maxTokens.
// It prefers cutting at a sentence or line boundary when one falls in the
// last fifth of the kept text, and otherwise appends "...".
func TruncateToTokens(est TokenEstimator, text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if est.Estimate(text) <= maxTokens {
		return text
	}

	// Largest rune prefix that fits with room for the ellipsis.
	runes := utf8.RuneCountInString(text)
	lo, hi := 0, runes
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if est.Estimate(prefixRunes(text, mid)+"...") <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	kept := prefixRunes(text, lo)
	if kept == "" {
		return ""
	}

	cut := max(strings.LastIndexAny(kept, ".!?"), strings.LastIndex(kept, "\n"))
	if cut > 0 && float64(cut) > float64(len(kept))*0.8 {
		return strings.TrimRight(kept[:cut+1], "\n")
	}
	return kept + "..."
}

func prefixRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
