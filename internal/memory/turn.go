// Package memory defines the conversational memory domain: turns, long-term
// records, the capabilities memory depends on, and the error taxonomy shared
// by the short-term and long-term stores.
package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who produced a turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the speaker label used in transcripts.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Turn is one message in a conversation. Turns are immutable once created.
type Turn struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTurn creates a turn with a fresh time-sortable ID and the current UTC time.
func NewTurn(ownerID, sessionID string, role Role, text string) Turn {
	now := time.Now().UTC()
	return Turn{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		OwnerID:   ownerID,
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		CreatedAt: now,
	}
}

// Validate checks the fields every store relies on.
func (t Turn) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: turn id is empty", ErrValidation)
	}
	if !t.Role.Valid() {
		return fmt.Errorf("%w: turn %s has unknown role %q", ErrValidation, t.ID, t.Role)
	}
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("%w: turn %s has empty text", ErrValidation, t.ID)
	}
	return nil
}
