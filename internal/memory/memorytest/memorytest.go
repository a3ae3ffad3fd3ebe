// Package memorytest provides test doubles for the memory capability interfaces.
package memorytest

import (
	"context"
	"strconv"
	"sync"

	"github.com/skillminer/memoryd/internal/embedding"
	"github.com/skillminer/memoryd/internal/memory"
)

// Summarizer is a configurable test double for memory.Summarizer.
// When SummarizeFunc is nil it returns the prior summary and the text joined
// by " | ". All methods are safe for concurrent use.
type Summarizer struct {
	SummarizeFunc func(ctx context.Context, text, prior string) (string, error)

	mu     sync.Mutex
	calls  int
	inputs []string
}

// Summarize records the call and delegates to SummarizeFunc.
func (s *Summarizer) Summarize(ctx context.Context, text, prior string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.inputs = append(s.inputs, text)
	s.mu.Unlock()
	if s.SummarizeFunc != nil {
		return s.SummarizeFunc(ctx, text, prior)
	}
	if prior == "" {
		return text, nil
	}
	return prior + " | " + text, nil
}

// Calls returns the number of Summarize calls.
func (s *Summarizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Inputs returns the text passed to each Summarize call.
func (s *Summarizer) Inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

// Embedder is a configurable test double for memory.Embedder.
// When EmbedFunc is nil it uses a deterministic hashing embedder.
type Embedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	Dims      int

	mu      sync.Mutex
	calls   int
	hashing *embedding.Hashing
}

// Embed records the call and delegates to EmbedFunc.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	if e.hashing == nil {
		e.hashing = embedding.NewHashing(e.Dimensions())
	}
	h := e.hashing
	e.mu.Unlock()
	if e.EmbedFunc != nil {
		return e.EmbedFunc(ctx, text)
	}
	return h.Embed(ctx, text)
}

// Dimensions returns Dims, defaulting to 64.
func (e *Embedder) Dimensions() int {
	if e.Dims <= 0 {
		return 64
	}
	return e.Dims
}

// Calls returns the number of Embed calls.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Extractor is a configurable test double for memory.EntityExtractor.
// When ExtractFunc is nil it returns no entities.
type Extractor struct {
	ExtractFunc func(ctx context.Context, text string) (memory.Entities, error)

	mu    sync.Mutex
	calls int
}

// ExtractEntities records the call and delegates to ExtractFunc.
func (x *Extractor) ExtractEntities(ctx context.Context, text string) (memory.Entities, error) {
	x.mu.Lock()
	x.calls++
	x.mu.Unlock()
	if x.ExtractFunc != nil {
		return x.ExtractFunc(ctx, text)
	}
	return memory.Entities{}, nil
}

// Calls returns the number of ExtractEntities calls.
func (x *Extractor) Calls() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.calls
}

// Observer records degraded events.
type Observer struct {
	mu     sync.Mutex
	events []memory.DegradedEvent
}

// Degraded records ev.
func (o *Observer) Degraded(_ context.Context, ev memory.DegradedEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

// Events returns a copy of the recorded events.
func (o *Observer) Events() []memory.DegradedEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]memory.DegradedEvent(nil), o.events...)
}

// Count returns how many events were recorded for op.
func (o *Observer) Count(op memory.Op) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, ev := range o.events {
		if ev.Op == op {
			n++
		}
	}
	return n
}

// Turns builds n alternating user/assistant turns for one session.
// Turn i has text "message <i>" and a CreatedAt strictly after turn i-1.
func Turns(ownerID, sessionID string, n int) []memory.Turn {
	out := make([]memory.Turn, 0, n)
	for i := range n {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAssistant
		}
		t := memory.NewTurn(ownerID, sessionID, role, "message "+strconv.Itoa(i))
		if len(out) > 0 && !t.CreatedAt.After(out[len(out)-1].CreatedAt) {
			t.CreatedAt = out[len(out)-1].CreatedAt.Add(1)
		}
		out = append(out, t)
	}
	return out
}

var (
	_ memory.Summarizer      = (*Summarizer)(nil)
	_ memory.Embedder        = (*Embedder)(nil)
	_ memory.EntityExtractor = (*Extractor)(nil)
	_ memory.Observer        = (*Observer)(nil)
)
