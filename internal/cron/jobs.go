package cron

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skillminer/memoryd/internal/stm"
)

// SessionExpirer is the subset of stm.Manager the sweep job needs.
type SessionExpirer interface {
	Expire() []stm.Info
}

// Backfiller is the subset of ltm.Store the backfill job needs.
type Backfiller interface {
	Backfill(ctx context.Context, limit int) (int, error)
}

// SessionSweepJob drops short-term sessions idle longer than their TTL.
type SessionSweepJob struct {
	Sessions     SessionExpirer
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "* * * * *"
}

// Compile-time interface check.
var _ Job = (*SessionSweepJob)(nil)

// Name implements Job.
func (j *SessionSweepJob) Name() string { return "session_sweep" }

// Schedule implements Job.
func (j *SessionSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "* * * * *"
}

// Run expires idle sessions.
func (j *SessionSweepJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: session sweep cancelled: %w", ctx.Err())
	}
	if expired := j.Sessions.Expire(); len(expired) > 0 {
		j.Logger.Info("cron: expired idle sessions", "count", len(expired))
	}
	return nil
}

// EmbeddingBackfillJob embeds long-term records that were stored without a
// vector because the embedder was unavailable at the time.
type EmbeddingBackfillJob struct {
	Store        Backfiller
	BatchSize    int // <= 0 means 100
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/10 * * * *"
}

// Compile-time interface check.
var _ Job = (*EmbeddingBackfillJob)(nil)

// Name implements Job.
func (j *EmbeddingBackfillJob) Name() string { return "embedding_backfill" }

// Schedule implements Job.
func (j *EmbeddingBackfillJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/10 * * * *"
}

// Run fills in one batch of missing embeddings.
func (j *EmbeddingBackfillJob) Run(ctx context.Context) error {
	batch := j.BatchSize
	if batch <= 0 {
		batch = 100
	}
	n, err := j.Store.Backfill(ctx, batch)
	if err != nil {
		return fmt.Errorf("cron: embedding backfill: %w", err)
	}
	if n > 0 {
		j.Logger.Info("cron: backfilled embeddings", "count", n)
	}
	return nil
}
