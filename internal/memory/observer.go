package memory

import "context"

// Op names the step that degraded.
type Op string

// Degradable operations.
const (
	OpEmbed           Op = "embed"
	OpSummarize       Op = "summarize"
	OpExtractEntities Op = "extract_entities"
	OpPersist         Op = "persist"
	OpNativeSearch    Op = "native_search"
	OpRetrieve        Op = "retrieve"
	OpSTMRead         Op = "stm_read"
	OpSTMAppend       Op = "stm_append"
	OpLTMStore        Op = "ltm_store"
	OpBackfill        Op = "backfill"
)

// DegradedEvent describes a dependency failure that was absorbed instead of
// returned to the caller.
type DegradedEvent struct {
	Op        Op
	OwnerID   string
	SessionID string
	RecordID  string
	Err       error
}

// Observer receives every degraded-path event. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	Degraded(ctx context.Context, ev DegradedEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev DegradedEvent)

// Degraded calls f.
func (f ObserverFunc) Degraded(ctx context.Context, ev DegradedEvent) { f(ctx, ev) }

// NopObserver discards events.
type NopObserver struct{}

// Degraded does nothing.
func (NopObserver) Degraded(context.Context, DegradedEvent) {}
