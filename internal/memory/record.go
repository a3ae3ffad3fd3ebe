package memory

import "time"

// Record is a long-term memory entry derived from a single turn.
// Records are append-only; Embedding may be nil when embedding failed at
// write time, in which case the record is skipped by similarity retrieval
// until it is backfilled.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	SessionID string    `json:"session_id,omitempty"`
	TurnID    string    `json:"turn_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	Entities  Entities  `json:"entities,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Embedded reports whether the record carries an embedding.
func (r Record) Embedded() bool {
	return len(r.Embedding) > 0
}

// Result is a record matched by similarity retrieval.
type Result struct {
	Record     Record  `json:"record"`
	Similarity float64 `json:"similarity"`
}

// MergedContext is what BuildContext hands back to the caller: the short-term
// view of the current session plus long-term memories relevant to the query.
type MergedContext struct {
	RollingSummary    string   `json:"rolling_summary"`
	RecentTurns       []Turn   `json:"recent_turns"`
	RetrievedMemories []Result `json:"retrieved_memories"`
}

// Empty reports whether the context carries nothing at all.
func (c MergedContext) Empty() bool {
	return c.RollingSummary == "" && len(c.RecentTurns) == 0 && len(c.RetrievedMemories) == 0
}
