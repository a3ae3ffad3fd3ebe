// Package events streams memory subsystem events to websocket subscribers.
package events

import (
	"time"

	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/stm"
)

// Type identifies the kind of an Event.
type Type string

// Event types.
const (
	TypeDegraded       Type = "degraded"
	TypeSessionExpired Type = "session_expired"
)

// Event is the JSON message written to subscribers.
type Event struct {
	Type      Type      `json:"type"`
	Time      time.Time `json:"time"`
	Op        memory.Op `json:"op,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Error     string    `json:"error,omitempty"`

	// Session is set on session_expired.
	Session *stm.Info `json:"session,omitempty"`
}

func degradedEvent(ev memory.DegradedEvent, at time.Time) Event {
	e := Event{
		Type:      TypeDegraded,
		Time:      at,
		Op:        ev.Op,
		OwnerID:   ev.OwnerID,
		SessionID: ev.SessionID,
		RecordID:  ev.RecordID,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

func expiredEvent(info stm.Info, at time.Time) Event {
	return Event{
		Type:      TypeSessionExpired,
		Time:      at,
		OwnerID:   info.OwnerID,
		SessionID: info.SessionID,
		Session:   &info,
	}
}
