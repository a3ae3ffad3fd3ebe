package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType categorizes audit events.
type EventType string

const (
	EventAuthSuccess   EventType = "auth_success"
	EventAuthFailure   EventType = "auth_failure"
	EventRateLimit     EventType = "rate_limit"
	EventSessionDelete EventType = "session_delete"
	EventForgetOwner   EventType = "forget_owner"
	EventForgetTurn    EventType = "forget_turn"
)

// Erasure reports whether the event records deleted conversation data.
func (t EventType) Erasure() bool {
	switch t {
	case EventSessionDelete, EventForgetOwner, EventForgetTurn:
		return true
	}
	return false
}

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	OwnerID   string            `json:"owner_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	TurnID    string            `json:"turn_id,omitempty"`
	Records   int               `json:"records,omitempty"`
	Sessions  int               `json:"sessions,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil means events only go to
	// OnEvent. When Writer also implements Sync (an *os.File does), erasure
	// events are synced before Log returns.
	Writer io.Writer

	// Redactor is applied to Detail and Metadata values.
	Redactor *Redactor

	OnEvent func(AuditEvent)

	// Now overrides time.Now in tests.
	Now func() time.Time
}

type syncer interface{ Sync() error }

// AuditLogger appends audit events as JSONL. Erasures are always logged
// so an operator can show a deletion request was carried out.
type AuditLogger struct {
	enc      *json.Encoder
	fsync    syncer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
	mu       sync.Mutex
	failures atomic.Int64
}

func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	l := &AuditLogger{redactor: cfg.Redactor, onEvent: cfg.OnEvent, now: cfg.Now}
	if l.now == nil {
		l.now = time.Now
	}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
		l.fsync, _ = cfg.Writer.(syncer)
	}
	return l
}

// Log stamps event with an id and time and writes it. The caller's
// Metadata map is not modified. Safe on a nil logger.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	now := l.now().UTC()
	event.Timestamp = now
	event.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	event.Metadata = maps.Clone(event.Metadata)
	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.enc == nil {
		return
	}
	err := l.enc.Encode(event)
	if err == nil && l.fsync != nil && event.Type.Erasure() {
		err = l.fsync.Sync()
	}
	if err != nil {
		l.failures.Add(1)
	}
}

// WriteErrors returns how many events failed to reach the writer.
func (l *AuditLogger) WriteErrors() int64 {
	if l == nil {
		return 0
	}
	return l.failures.Load()
}
