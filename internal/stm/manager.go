package stm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	ctxengine "github.com/skillminer/memoryd/internal/context"
	"github.com/skillminer/memoryd/internal/memory"
)

var tracer = otel.Tracer("github.com/skillminer/memoryd/internal/stm")

// Context is the short-term view of one session.
type Context struct {
	SessionID      string
	OwnerID        string
	RollingSummary string
	RecentTurns    []memory.Turn
	TokenEstimate  int
}

// Info describes a live session for administration.
type Info struct {
	SessionID     string    `json:"session_id"`
	OwnerID       string    `json:"owner_id"`
	Messages      int       `json:"messages"`
	Pending       int       `json:"pending"`
	TokenEstimate int       `json:"token_estimate"`
	Compactions   int       `json:"compactions"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccess    time.Time `json:"last_access"`
}

// Recorder receives manager statistics. observability.Metrics implements it.
type Recorder interface {
	Compaction(ok bool, folded int)
	Expired(n int)
	Active(n int)
}

type nopRecorder struct{}

func (nopRecorder) Compaction(bool, int) {}
func (nopRecorder) Expired(int)          {}
func (nopRecorder) Active(int)           {}

// Options carries the manager's collaborators. Zero values are usable.
type Options struct {
	Summarizer memory.Summarizer
	Estimator  ctxengine.TokenEstimator
	Observer   memory.Observer
	Recorder   Recorder
	Logger     *slog.Logger
	Now        func() time.Time
}

type session struct {
	mu sync.Mutex

	id         string
	ownerID    string
	turns      []memory.Turn
	pending    []memory.Turn // folded into the summary on the next successful compaction
	summary    string
	tokens     int
	created    time.Time
	lastAccess atomic.Int64 // unix nanoseconds
	compacts   int
	removed    bool
}

// Manager owns every live session buffer. Mutations of one session are
// serialized by that session's lock; different sessions proceed in parallel.
type Manager struct {
	cfg       Config
	compactor *ctxengine.Compactor
	observer  memory.Observer
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	onExpire func(Info)
}

// NewManager creates a manager.
func NewManager(cfg Config, opts Options) *Manager {
	cfg = cfg.withDefaults()
	if opts.Observer == nil {
		opts.Observer = memory.NopObserver{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		cfg:       cfg,
		compactor: ctxengine.NewCompactor(opts.Summarizer, opts.Estimator, cfg.compactor()),
		observer:  opts.Observer,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		now:       opts.Now,
		sessions:  make(map[string]*session),
	}
}

// SetExpireHook registers a function called for every session removed by
// idle expiry. It is called without any lock held.
func (m *Manager) SetExpireHook(hook func(Info)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Append adds turn to the session, creating the session on first use, and
// compacts when the buffer exceeds its bounds. A failed compaction leaves
// the summary untouched; the turns it could not fold stay queued for the
// next attempt and are reported to the observer. Only validation errors are
// returned.
func (m *Manager) Append(ctx context.Context, sessionID, ownerID string, turn memory.Turn) error {
	if err := memory.RequireID("session id", sessionID); err != nil {
		return err
	}
	if err := memory.RequireID("owner id", ownerID); err != nil {
		return err
	}
	if err := turn.Validate(); err != nil {
		return err
	}

	s, err := m.lockSession(sessionID, ownerID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	s.touch(m.now())

	if len(s.pending) > 0 || m.compactor.ShouldCompact(s.turns, s.summary) {
		m.compact(ctx, s)
	}
	s.tokens = ctxengine.EstimateState(m.compactor.Estimator(), s.turns, s.summary)
	return nil
}

// lockSession returns the live session for sessionID with its lock held,
// creating it if needed.
func (m *Manager) lockSession(sessionID, ownerID string) (*session, error) {
	for {
		m.mu.Lock()
		s, ok := m.sessions[sessionID]
		if ok && m.idle(s) {
			// Expired but not yet swept: drop it and start fresh.
			delete(m.sessions, sessionID)
			ok = false
		}
		if !ok {
			now := m.now()
			s = &session{id: sessionID, ownerID: ownerID, created: now}
			s.touch(now)
			m.sessions[sessionID] = s
			m.recorder.Active(len(m.sessions))
		}
		m.mu.Unlock()

		s.mu.Lock()
		if s.removed {
			s.mu.Unlock()
			continue
		}
		if s.ownerID != ownerID {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: session %s belongs to another owner", memory.ErrValidation, sessionID)
		}
		return s, nil
	}
}

// compact runs with s.mu held.
func (m *Manager) compact(ctx context.Context, s *session) {
	ctx, span := tracer.Start(ctx, "stm.Compact")
	defer span.End()

	all := append(slices.Clone(s.pending), s.turns...)
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("stm.turns", len(all)),
	)

	res, err := m.compactor.Compact(ctx, all, s.summary)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compaction failed")
		m.recorder.Compaction(false, 0)
		m.observer.Degraded(ctx, memory.DegradedEvent{
			Op:        memory.OpSummarize,
			OwnerID:   s.ownerID,
			SessionID: s.id,
			Err:       memory.Transient("stm: compaction", err),
		})
		m.holdOverflow(ctx, s)
		return
	}

	s.summary = res.Summary
	s.turns = res.Retained
	s.pending = nil
	s.compacts++
	m.recorder.Compaction(true, res.Folded)
	m.logger.Debug("session compacted",
		"session", s.id,
		"folded", res.Folded,
		"retained", len(res.Retained),
	)
}

// holdOverflow moves the oldest raw turns out of the visible buffer so it
// never exceeds MaxMessages while the summarizer is failing.
func (m *Manager) holdOverflow(ctx context.Context, s *session) {
	if over := len(s.turns) - m.cfg.MaxMessages; over > 0 {
		s.pending = append(s.pending, s.turns[:over]...)
		s.turns = slices.Clone(s.turns[over:])
	}
	if drop := len(s.pending) - m.cfg.MaxPending; drop > 0 {
		s.pending = slices.Clone(s.pending[drop:])
		m.observer.Degraded(ctx, memory.DegradedEvent{
			Op:        memory.OpSTMAppend,
			OwnerID:   s.ownerID,
			SessionID: s.id,
			Err:       fmt.Errorf("stm: dropped %d unsummarized turns: %w", drop, memory.ErrTransientDependency),
		})
	}
}

// GetContext returns the rolling summary and recent turns of a session.
// It returns memory.ErrNotFound for unknown or expired sessions.
func (m *Manager) GetContext(sessionID string) (Context, error) {
	s, ok := m.live(sessionID)
	if !ok {
		return Context{}, fmt.Errorf("%w: session %s", memory.ErrNotFound, sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return Context{}, fmt.Errorf("%w: session %s", memory.ErrNotFound, sessionID)
	}
	s.touch(m.now())
	return Context{
		SessionID:      s.id,
		OwnerID:        s.ownerID,
		RollingSummary: s.summary,
		RecentTurns:    slices.Clone(s.turns),
		TokenEstimate:  s.tokens,
	}, nil
}

// Session returns administrative details about a session.
func (m *Manager) Session(sessionID string) (Info, error) {
	s, ok := m.live(sessionID)
	if !ok {
		return Info{}, fmt.Errorf("%w: session %s", memory.ErrNotFound, sessionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info(), nil
}

// Sessions lists live sessions, oldest first. When ownerID is non-empty only
// that owner's sessions are returned.
func (m *Manager) Sessions(ownerID string) []Info {
	m.mu.RLock()
	list := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !m.idle(s) {
			list = append(list, s)
		}
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		if !s.removed && (ownerID == "" || s.ownerID == ownerID) {
			out = append(out, s.info())
		}
		s.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b Info) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Len returns the number of sessions in the registry.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Clear removes a session immediately. It reports whether the session existed.
func (m *Manager) Clear(sessionID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.recorder.Active(n)
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()
	return true
}

// ClearOwner removes every session belonging to ownerID and returns how many
// were removed.
func (m *Manager) ClearOwner(ownerID string) int {
	m.mu.Lock()
	var removed []*session
	for id, s := range m.sessions {
		if s.ownerID == ownerID {
			delete(m.sessions, id)
			removed = append(removed, s)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range removed {
		s.mu.Lock()
		s.removed = true
		s.mu.Unlock()
	}
	if len(removed) > 0 {
		m.recorder.Active(n)
	}
	return len(removed)
}

// Expire removes every session idle for longer than the TTL and returns them.
// Expiry has no side effects beyond the expire hook.
func (m *Manager) Expire() []Info {
	m.mu.Lock()
	var expired []*session
	for id, s := range m.sessions {
		if m.idle(s) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	n := len(m.sessions)
	hook := m.onExpire
	m.mu.Unlock()

	infos := make([]Info, 0, len(expired))
	for _, s := range expired {
		s.mu.Lock()
		s.removed = true
		infos = append(infos, s.info())
		s.mu.Unlock()
	}
	if len(expired) > 0 {
		m.recorder.Expired(len(expired))
		m.recorder.Active(n)
		m.logger.Info("sessions expired", "count", len(expired))
	}
	if hook != nil {
		for _, info := range infos {
			hook(info)
		}
	}
	return infos
}

// StartJanitor runs Expire every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Expire()
			}
		}
	}()
}

func (m *Manager) live(sessionID string) (*session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || m.idle(s) {
		return nil, false
	}
	return s, true
}

func (m *Manager) idle(s *session) bool {
	return m.now().Sub(s.accessed()) > m.cfg.SessionTTL
}

func (s *session) touch(t time.Time) { s.lastAccess.Store(t.UnixNano()) }

func (s *session) accessed() time.Time { return time.Unix(0, s.lastAccess.Load()) }

func (s *session) info() Info {
	return Info{
		SessionID:     s.id,
		OwnerID:       s.ownerID,
		Messages:      len(s.turns),
		Pending:       len(s.pending),
		TokenEstimate: s.tokens,
		Compactions:   s.compacts,
		CreatedAt:     s.created,
		LastAccess:    s.accessed(),
	}
}
