package ltm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/skillminer/memoryd/internal/memory"
)

var tracer = otel.Tracer("github.com/skillminer/memoryd/internal/ltm")

// Defaults for retrieval.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.7
)

// Config tunes retrieval.
type Config struct {
	TopK      int
	Threshold float64

	// ScanLimit caps how many of an owner's newest records the fallback scan
	// ranks. Zero scans all of them.
	ScanLimit int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	return c
}

// Validate checks the retrieval settings.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("%w: similarity threshold %v outside [0,1]", memory.ErrConfiguration, c.Threshold)
	}
	if c.TopK < 0 {
		return fmt.Errorf("%w: top k must be positive", memory.ErrConfiguration)
	}
	if c.ScanLimit < 0 {
		return fmt.Errorf("%w: scan limit must not be negative", memory.ErrConfiguration)
	}
	return nil
}

// Recorder receives store statistics. observability.Metrics implements it.
type Recorder interface {
	Stored(embedded bool)
	Retrieved(strategy string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Stored(bool)                      {}
func (nopRecorder) Retrieved(string, time.Duration) {}

// Options carries the store's optional collaborators.
type Options struct {
	// Index is the native similarity facility. Without one every query is
	// answered by scanning the repository.
	Index     Index
	Extractor memory.EntityExtractor
	Observer  memory.Observer
	Recorder  Recorder
	Logger    *slog.Logger
	Now       func() time.Time
}

// Store persists embedded turn snippets and retrieves them by similarity.
type Store struct {
	cfg       Config
	repo      Repository
	index     Index
	embedder  memory.Embedder
	extractor memory.EntityExtractor
	observer  memory.Observer
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	native searcher
	scan   searcher

	// synced holds the owners whose index is known to contain every
	// embedded record in the repository.
	synced sync.Map
	syncs  singleflight.Group
	shared bool
}

// NewStore creates a store over repo. It fails with memory.ErrConfiguration
// when the settings or the embedder's dimension are invalid.
func NewStore(repo Repository, embedder memory.Embedder, cfg Config, opts Options) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("%w: ltm repository is required", memory.ErrConfiguration)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", memory.ErrConfiguration)
	}
	if embedder.Dimensions() < 1 {
		return nil, fmt.Errorf("%w: embedding dimension %d", memory.ErrConfiguration, embedder.Dimensions())
	}
	cfg = cfg.withDefaults()
	if opts.Extractor == nil {
		opts.Extractor = memory.NopExtractor{}
	}
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

	s := &Store{
		cfg:       cfg,
		repo:      repo,
		index:     opts.Index,
		embedder:  embedder,
		extractor: opts.Extractor,
		observer:  opts.Observer,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		now:       opts.Now,
		scan:      scanSearcher{repo: repo, limit: cfg.ScanLimit},
	}
	if opts.Index != nil {
		s.native = nativeSearcher{index: opts.Index}
		if b, ok := opts.Index.(repositoryBacked); ok && b.BackedByRepository() {
			s.shared = true
		}
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// Dimensions is the embedding dimension every stored vector has.
func (s *Store) Dimensions() int { return s.embedder.Dimensions() }

// Store embeds turn, extracts its entities, and persists a record for
// ownerID. Empty text is rejected before any capability is called.
// Embedding and extraction failures are absorbed: the record is kept
// without an embedding or without entities. Only a failed write to the
// repository is returned, as a transient error.
func (s *Store) Store(ctx context.Context, ownerID string, turn memory.Turn) (memory.Record, error) {
	if err := memory.RequireID("owner id", ownerID); err != nil {
		return memory.Record{}, err
	}
	if strings.TrimSpace(turn.Text) == "" {
		return memory.Record{}, fmt.Errorf("%w: turn text is empty", memory.ErrValidation)
	}
	if turn.OwnerID != "" && turn.OwnerID != ownerID {
		return memory.Record{}, fmt.Errorf("%w: turn belongs to owner %s", memory.ErrValidation, turn.OwnerID)
	}

	ctx, span := tracer.Start(ctx, "ltm.Store")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	rec := memory.Record{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		SessionID: turn.SessionID,
		TurnID:    turn.ID,
		Role:      turn.Role,
		Text:      turn.Text,
		CreatedAt: turn.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	var g errgroup.Group
	g.Go(func() error {
		vec, err := s.embed(ctx, rec.Text)
		if err != nil {
			s.degraded(ctx, memory.DegradedEvent{Op: memory.OpEmbed, OwnerID: ownerID, SessionID: rec.SessionID, RecordID: rec.ID, Err: err})
			return nil
		}
		rec.Embedding = vec
		return nil
	})
	g.Go(func() error {
		ents, err := s.extractor.ExtractEntities(ctx, rec.Text)
		if err != nil {
			s.degraded(ctx, memory.DegradedEvent{Op: memory.OpExtractEntities, OwnerID: ownerID, SessionID: rec.SessionID, RecordID: rec.ID, Err: err})
			ents = nil
		}
		rec.Entities = ents.Normalize()
		return nil
	})
	_ = g.Wait()

	if err := s.repo.Put(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return memory.Record{}, memory.Transient("ltm: persist record", err)
	}
	s.recorder.Stored(rec.Embedded())
	span.SetAttributes(attribute.Bool("record.embedded", rec.Embedded()))

	if rec.Embedded() && s.index != nil {
		if err := s.index.Upsert(ctx, rec); err != nil {
			s.synced.Delete(ownerID)
			s.degraded(ctx, memory.DegradedEvent{Op: memory.OpPersist, OwnerID: ownerID, SessionID: rec.SessionID, RecordID: rec.ID, Err: memory.Transient("ltm: index upsert", err)})
		}
	}
	return rec, nil
}

// Retrieve returns at most topK of ownerID's records whose cosine similarity
// to query is at least threshold, best first. The native index answers when
// present; if it is missing or fails, the repository is scanned instead.
// An owner without records yields an empty slice.
func (s *Store) Retrieve(ctx context.Context, ownerID, query string, topK int, threshold float64) ([]memory.Result, error) {
	if err := memory.RequireID("owner id", ownerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", memory.ErrValidation)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: top k must be positive", memory.ErrValidation)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [0,1]", memory.ErrValidation, threshold)
	}

	ctx, span := tracer.Start(ctx, "ltm.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.Int("top_k", topK),
		attribute.Float64("threshold", threshold),
	)
	start := s.now()

	vec, err := s.embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, err
	}

	results, strategy, err := s.search(ctx, ownerID, vec, topK, threshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, memory.Transient("ltm: retrieve", err)
	}
	if results == nil {
		results = []memory.Result{}
	}
	s.recorder.Retrieved(strategy, s.now().Sub(start))
	span.SetAttributes(attribute.String("strategy", strategy), attribute.Int("results", len(results)))
	return results, nil
}

func (s *Store) search(ctx context.Context, ownerID string, vec []float32, topK int, threshold float64) ([]memory.Result, string, error) {
	if s.native != nil {
		err := s.ensureIndexed(ctx, ownerID)
		var results []memory.Result
		if err == nil {
			results, err = s.native.search(ctx, ownerID, vec, topK, threshold)
		}
		if err == nil {
			return results, s.native.name(), nil
		}
		if ctx.Err() != nil {
			return nil, s.native.name(), ctx.Err()
		}
		s.degraded(ctx, memory.DegradedEvent{Op: memory.OpNativeSearch, OwnerID: ownerID, Err: memory.Transient("ltm: native search", err)})
	}
	results, err := s.scan.search(ctx, ownerID, vec, topK, threshold)
	return results, s.scan.name(), err
}

// SyncIndex copies every embedded record of ownerID from the repository into
// the index and returns how many were written. Upserts overwrite, so
// records the index already holds are unaffected.
func (s *Store) SyncIndex(ctx context.Context, ownerID string) (int, error) {
	if err := memory.RequireID("owner id", ownerID); err != nil {
		return 0, err
	}
	if s.index == nil || s.shared {
		return 0, nil
	}
	recs, err := s.repo.ListByOwner(ctx, ownerID, 0)
	if err != nil {
		return 0, memory.Transient("ltm: list records", err)
	}
	n := 0
	for _, rec := range recs {
		if !rec.Embedded() {
			continue
		}
		if err := s.index.Upsert(ctx, rec); err != nil {
			return n, memory.Transient("ltm: index upsert", err)
		}
		n++
	}
	s.synced.Store(ownerID, struct{}{})
	if n > 0 {
		s.logger.Debug("index synced from repository", "owner", ownerID, "records", n)
	}
	return n, nil
}

// ensureIndexed fills the index for ownerID the first time it is queried
// and again after any upsert for that owner failed.
func (s *Store) ensureIndexed(ctx context.Context, ownerID string) error {
	if s.shared {
		return nil
	}
	if _, ok := s.synced.Load(ownerID); ok {
		return nil
	}
	_, err, _ := s.syncs.Do(ownerID, func() (any, error) {
		if _, ok := s.synced.Load(ownerID); ok {
			return nil, nil
		}
		return s.SyncIndex(context.WithoutCancel(ctx), ownerID)
	})
	return err
}

// Backfill embeds up to limit records stored without an embedding, oldest
// first, and returns how many were filled. Records that still fail to embed
// are reported and skipped.
func (s *Store) Backfill(ctx context.Context, limit int) (int, error) {
	recs, err := s.repo.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return 0, memory.Transient("ltm: list missing embeddings", err)
	}
	filled := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		vec, err := s.embed(ctx, rec.Text)
		if err != nil {
			s.degraded(ctx, memory.DegradedEvent{Op: memory.OpBackfill, OwnerID: rec.OwnerID, SessionID: rec.SessionID, RecordID: rec.ID, Err: err})
			continue
		}
		if err := s.repo.SetEmbedding(ctx, rec.ID, vec); err != nil {
			return filled, memory.Transient("ltm: set embedding", err)
		}
		rec.Embedding = vec
		if s.index != nil {
			if err := s.index.Upsert(ctx, rec); err != nil {
				s.synced.Delete(rec.OwnerID)
				s.degraded(ctx, memory.DegradedEvent{Op: memory.OpBackfill, OwnerID: rec.OwnerID, RecordID: rec.ID, Err: memory.Transient("ltm: index upsert", err)})
			}
		}
		filled++
	}
	if filled > 0 {
		s.logger.Info("backfilled embeddings", "records", filled, "pending", len(recs)-filled)
	}
	return filled, nil
}

// Forget deletes every record of ownerID from the repository and the index.
func (s *Store) Forget(ctx context.Context, ownerID string) (int, error) {
	if err := memory.RequireID("owner id", ownerID); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteOwner(ctx, ownerID)
	if err != nil {
		return 0, memory.Transient("ltm: delete owner", err)
	}
	if s.index != nil {
		if err := s.index.DeleteOwner(ctx, ownerID); err != nil {
			return n, memory.Transient("ltm: index delete owner", err)
		}
	}
	s.logger.Info("owner memories deleted", "owner", ownerID, "records", n)
	return n, nil
}

// ForgetTurn deletes the records derived from one turn.
func (s *Store) ForgetTurn(ctx context.Context, ownerID, turnID string) (int, error) {
	if err := errors.Join(memory.RequireID("owner id", ownerID), memory.RequireID("turn id", turnID)); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteTurn(ctx, ownerID, turnID)
	if err != nil {
		return 0, memory.Transient("ltm: delete turn", err)
	}
	if s.index != nil {
		if err := s.index.DeleteTurn(ctx, ownerID, turnID); err != nil {
			return n, memory.Transient("ltm: index delete turn", err)
		}
	}
	return n, nil
}

// Recent lists an owner's newest records.
func (s *Store) Recent(ctx context.Context, ownerID string, limit int) ([]memory.Record, error) {
	if err := memory.RequireID("owner id", ownerID); err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, memory.Transient("ltm: list records", err)
	}
	return recs, nil
}

// embed calls the embedder and checks the vector's dimension.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, memory.Transient("ltm: embed", err)
	}
	if want := s.embedder.Dimensions(); len(vec) != want {
		return nil, memory.Transient("ltm: embed", fmt.Errorf("got %d dimensions, want %d", len(vec), want))
	}
	return vec, nil
}

func (s *Store) degraded(ctx context.Context, ev memory.DegradedEvent) {
	s.observer.Degraded(ctx, ev)
}
