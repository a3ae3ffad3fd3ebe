// Package ctxengine implements the token accounting, compaction, and prompt
// rendering shared by the short-term memory manager and the orchestrator.
package ctxengine

// Defaults for the short-term buffer bounds.
const (
	DefaultMaxMessages  = 15
	DefaultMaxTokens    = 500
	DefaultRetainRecent = 4
)

// Config bounds a short-term buffer.
type Config struct {
	// MaxMessages is the largest number of raw turns kept before compaction.
	MaxMessages int

	// MaxTokens bounds the estimated size of the raw turns plus the rolling summary.
	MaxTokens int

	// RetainRecent is the number of most-recent turns kept verbatim after compaction.
	RetainRecent int
}

// withDefaults returns a copy of cfg with zero-valued fields replaced by
// defaults. RetainRecent is clamped below MaxMessages so a compaction always
// makes room.
func (cfg Config) withDefaults() Config {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.RetainRecent <= 0 {
		cfg.RetainRecent = DefaultRetainRecent
	}
	if cfg.RetainRecent >= cfg.MaxMessages {
		cfg.RetainRecent = cfg.MaxMessages - 1
	}
	return cfg
}

// summaryReserve is the share of MaxTokens held back for the rolling summary
// when deciding how many recent turns to retain.
func (cfg Config) summaryReserve() int {
	return cfg.MaxTokens / 4
}
