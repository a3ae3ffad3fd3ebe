// Package observability routes degraded-path events, metrics, and traces
// out of the memory subsystem.
package observability

import (
	"context"
	"log/slog"

	"github.com/skillminer/memoryd/internal/memory"
)

// LogObserver writes every degraded event as a warning.
type LogObserver struct {
	logger *slog.Logger
}

var _ memory.Observer = (*LogObserver)(nil)

// NewLogObserver creates an observer logging to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Degraded implements memory.Observer.
func (o *LogObserver) Degraded(ctx context.Context, ev memory.DegradedEvent) {
	attrs := []slog.Attr{slog.String("op", string(ev.Op))}
	if ev.OwnerID != "" {
		attrs = append(attrs, slog.String("owner", ev.OwnerID))
	}
	if ev.SessionID != "" {
		attrs = append(attrs, slog.String("session", ev.SessionID))
	}
	if ev.RecordID != "" {
		attrs = append(attrs, slog.String("record", ev.RecordID))
	}
	if ev.Err != nil {
		attrs = append(attrs, slog.String("error", ev.Err.Error()))
	}
	o.logger.LogAttrs(ctx, slog.LevelWarn, "memory degraded", attrs...)
}

// Multi fans events out to several observers.
type Multi []memory.Observer

var _ memory.Observer = Multi(nil)

// Degraded implements memory.Observer.
func (m Multi) Degraded(ctx context.Context, ev memory.DegradedEvent) {
	for _, o := range m {
		if o != nil {
			o.Degraded(ctx, ev)
		}
	}
}
