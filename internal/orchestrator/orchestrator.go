// Package orchestrator is the single entry point of the memory subsystem.
// It merges short-term and long-term memory on read and writes both after a
// completed turn, absorbing dependency failures so the conversation is never
// blocked by memory.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
	"github.com/skillminer/memoryd/internal/stm"
)

var tracer = otel.Tracer("github.com/skillminer/memoryd/internal/orchestrator")

// ServiceName is the service under which the assembled orchestrator is published.
const ServiceName = "memory.orchestrator"

// Config holds the retrieval parameters used by BuildContext.
type Config struct {
	TopK      int
	Threshold float64
}

// Validate checks the retrieval parameters.
func (c Config) Validate() error {
	var errs []error
	if c.TopK < 1 {
		errs = append(errs, fmt.Errorf("%w: top k %d must be at least 1", memory.ErrConfiguration, c.TopK))
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("%w: similarity threshold %v outside [0,1]", memory.ErrConfiguration, c.Threshold))
	}
	return errors.Join(errs...)
}

// Options carries optional collaborators.
type Options struct {
	Observer memory.Observer
	Logger   *slog.Logger
}

// Orchestrator coordinates the STM manager and the LTM store.
type Orchestrator struct {
	cfg      Config
	stm      *stm.Manager
	ltm      *ltm.Store
	observer memory.Observer
	logger   *slog.Logger
}

// New creates an orchestrator. It fails with memory.ErrConfiguration when
// cfg is invalid or a component is missing.
func New(short *stm.Manager, long *ltm.Store, cfg Config, opts Options) (*Orchestrator, error) {
	if short == nil || long == nil {
		return nil, fmt.Errorf("%w: orchestrator needs both stm and ltm", memory.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Observer == nil {
		opts.Observer = memory.NopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		stm:      short,
		ltm:      long,
		observer: opts.Observer,
		logger:   opts.Logger,
	}, nil
}

// Config returns the retrieval parameters.
func (o *Orchestrator) Config() Config { return o.cfg }

// STM returns the short-term memory manager.
func (o *Orchestrator) STM() *stm.Manager { return o.stm }

// LTM returns the long-term memory store.
func (o *Orchestrator) LTM() *ltm.Store { return o.ltm }

// BuildContext reads the session's short-term state and the owner's long-term
// memories relevant to query. It has no side effects on stored state, so two
// calls without an intervening UpdateAfterTurn return equal values. A missing
// session or a failing dependency yields an empty sub-result; only
// validation errors are returned. An empty query skips long-term retrieval.
func (o *Orchestrator) BuildContext(ctx context.Context, ownerID, sessionID, query string) (memory.MergedContext, error) {
	if err := validateIDs(ownerID, sessionID); err != nil {
		return memory.MergedContext{}, err
	}

	ctx, span := tracer.Start(ctx, "memory.BuildContext")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.String("session.id", sessionID),
	)

	mc := memory.MergedContext{
		RecentTurns:       []memory.Turn{},
		RetrievedMemories: []memory.Result{},
	}

	var g errgroup.Group
	g.Go(func() error {
		sc, err := o.stm.GetContext(sessionID)
		switch {
		case errors.Is(err, memory.ErrNotFound):
			return nil
		case err != nil:
			o.degraded(ctx, memory.OpSTMRead, ownerID, sessionID, err)
			return nil
		case sc.OwnerID != ownerID:
			return fmt.Errorf("%w: session %s belongs to another owner", memory.ErrValidation, sessionID)
		}
		mc.RollingSummary = sc.RollingSummary
		if sc.RecentTurns != nil {
			mc.RecentTurns = sc.RecentTurns
		}
		return nil
	})
	if strings.TrimSpace(query) != "" {
		g.Go(func() error {
			results, err := o.ltm.Retrieve(ctx, ownerID, query, o.cfg.TopK, o.cfg.Threshold)
			if err != nil {
				if errors.Is(err, memory.ErrValidation) {
					return err
				}
				o.degraded(ctx, memory.OpRetrieve, ownerID, sessionID, err)
				return nil
			}
			mc.RetrievedMemories = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return memory.MergedContext{}, err
	}

	span.SetAttributes(
		attribute.Int("stm.turns", len(mc.RecentTurns)),
		attribute.Int("ltm.results", len(mc.RetrievedMemories)),
	)
	return mc, nil
}

// UpdateAfterTurn records a completed exchange: both turns are appended to
// the session in order and both are stored in long-term memory. Call it only
// after a reply was generated successfully. Missing owner or session fields
// on the turns are filled in. Dependency failures are reported to the
// observer and absorbed; only validation errors are returned.
func (o *Orchestrator) UpdateAfterTurn(ctx context.Context, ownerID, sessionID string, userTurn, assistantTurn memory.Turn) error {
	if err := validateIDs(ownerID, sessionID); err != nil {
		return err
	}
	turns := [2]memory.Turn{userTurn, assistantTurn}
	for i := range turns {
		t, err := bindTurn(turns[i], ownerID, sessionID)
		if err != nil {
			return err
		}
		turns[i] = t
	}
	if turns[0].Role != memory.RoleUser || turns[1].Role != memory.RoleAssistant {
		return fmt.Errorf("%w: expected a user turn followed by an assistant turn", memory.ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "memory.UpdateAfterTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.String("session.id", sessionID),
	)

	// The user turn goes in first: Append checks session ownership under the
	// session lock, and a rejected turn must not reach long-term memory.
	if err := o.stm.Append(ctx, sessionID, ownerID, turns[0]); err != nil {
		if errors.Is(err, memory.ErrValidation) {
			span.RecordError(err)
			return err
		}
		o.degraded(ctx, memory.OpSTMAppend, ownerID, sessionID, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := o.stm.Append(ctx, sessionID, ownerID, turns[1]); err != nil {
			if errors.Is(err, memory.ErrValidation) {
				return err
			}
			o.degraded(ctx, memory.OpSTMAppend, ownerID, sessionID, err)
		}
		return nil
	})
	for _, t := range turns {
		g.Go(func() error {
			if _, err := o.ltm.Store(ctx, ownerID, t); err != nil {
				if errors.Is(err, memory.ErrValidation) {
					return err
				}
				o.degraded(ctx, memory.OpLTMStore, ownerID, sessionID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ForgetResult reports what ForgetOwner removed.
type ForgetResult struct {
	Records  int `json:"records"`
	Sessions int `json:"sessions"`
}

// ForgetOwner deletes every long-term record of ownerID and drops the
// owner's live sessions. Unlike the turn pipeline, a storage failure is
// returned so the caller knows the deletion did not complete.
func (o *Orchestrator) ForgetOwner(ctx context.Context, ownerID string) (ForgetResult, error) {
	if err := memory.RequireID("owner id", ownerID); err != nil {
		return ForgetResult{}, err
	}
	res := ForgetResult{Sessions: o.stm.ClearOwner(ownerID)}
	n, err := o.ltm.Forget(ctx, ownerID)
	res.Records = n
	if err != nil {
		return res, err
	}
	o.logger.Info("owner forgotten", "owner", ownerID, "records", res.Records, "sessions", res.Sessions)
	return res, nil
}

// ForgetTurn deletes the long-term records derived from one turn.
func (o *Orchestrator) ForgetTurn(ctx context.Context, ownerID, turnID string) (int, error) {
	return o.ltm.ForgetTurn(ctx, ownerID, turnID)
}

// EndSession drops a session's short-term state. Long-term memory is not
// affected. It reports whether the session existed.
func (o *Orchestrator) EndSession(sessionID string) bool {
	return o.stm.Clear(sessionID)
}

func (o *Orchestrator) degraded(ctx context.Context, op memory.Op, ownerID, sessionID string, err error) {
	o.observer.Degraded(ctx, memory.DegradedEvent{
		Op:        op,
		OwnerID:   ownerID,
		SessionID: sessionID,
		Err:       err,
	})
}

func validateIDs(ownerID, sessionID string) error {
	return errors.Join(
		memory.RequireID("owner id", ownerID),
		memory.RequireID("session id", sessionID),
	)
}

// bindTurn fills in the owner and session of t and validates it.
func bindTurn(t memory.Turn, ownerID, sessionID string) (memory.Turn, error) {
	if t.OwnerID == "" {
		t.OwnerID = ownerID
	}
	if t.SessionID == "" {
		t.SessionID = sessionID
	}
	if t.OwnerID != ownerID || t.SessionID != sessionID {
		return t, fmt.Errorf("%w: turn %s does not belong to %s/%s", memory.ErrValidation, t.ID, ownerID, sessionID)
	}
	return t, t.Validate()
}
