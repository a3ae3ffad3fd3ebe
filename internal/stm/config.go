// Package stm implements short-term memory: a bounded per-session buffer of
// recent turns with a rolling summary of everything older.
package stm

import (
	"time"

	ctxengine "github.com/skillminer/memoryd/internal/context"
)

// DefaultSessionTTL is how long an idle session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Config bounds every session buffer.
type Config struct {
	MaxMessages  int
	MaxTokens    int
	RetainRecent int
	SessionTTL   time.Duration

	// MaxPending caps turns waiting to be folded after failed compactions.
	// Defaults to 4 × MaxMessages.
	MaxPending int
}

func (c Config) withDefaults() Config {
	if c.MaxMessages <= 0 {
		c.MaxMessages = ctxengine.DefaultMaxMessages
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = ctxengine.DefaultMaxTokens
	}
	if c.RetainRecent <= 0 {
		c.RetainRecent = ctxengine.DefaultRetainRecent
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 4 * c.MaxMessages
	}
	return c
}

func (c Config) compactor() ctxengine.Config {
	return ctxengine.Config{
		MaxMessages:  c.MaxMessages,
		MaxTokens:    c.MaxTokens,
		RetainRecent: c.RetainRecent,
	}
}
