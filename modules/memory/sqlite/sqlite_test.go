package sqlite

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/skillminer/memoryd/internal/core"
	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func record(id, owner, turn string, at time.Time, emb []float32) memory.Record {
	return memory.Record{
		ID:        id,
		OwnerID:   owner,
		SessionID: "s1",
		TurnID:    turn,
		Role:      memory.RoleUser,
		Text:      "text of " + id,
		Embedding: emb,
		Entities:  memory.Entities{memory.CategorySkills: {"Go"}},
		CreatedAt: at,
	}
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

func TestRepository_PutGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	want := record("r1", "alice", "t1", base, []float32{0.5, -0.25, 1})
	if err := repo.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := repo.Get(ctx, "alice", "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != want.Text || got.TurnID != "t1" || got.Role != memory.RoleUser {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
	}
	if !slices.Equal(got.Embedding, want.Embedding) {
		t.Errorf("Embedding = %v, want %v", got.Embedding, want.Embedding)
	}
	if !slices.Equal(got.Entities[memory.CategorySkills], []string{"Go"}) {
		t.Errorf("Entities = %v", got.Entities)
	}

	if _, err := repo.Get(ctx, "bob", "r1"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get for another owner: %v, want ErrNotFound", err)
	}
	if err := repo.Put(ctx, want); err == nil {
		t.Error("duplicate Put should fail")
	}
}

func TestRepository_ListByOwner(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Put(ctx, record(id, "alice", id, base.Add(time.Duration(i)*time.Second), nil)); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Put(ctx, record("x", "bob", "x", base, nil)); err != nil {
		t.Fatal(err)
	}

	all, err := repo.ListByOwner(ctx, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if ids := recordIDs(all); !slices.Equal(ids, []string{"c", "b", "a"}) {
		t.Errorf("ListByOwner = %v, want newest first", ids)
	}

	two, err := repo.ListByOwner(ctx, "alice", 2)
	if err != nil {
		t.Fatal(err)
	}
	if ids := recordIDs(two); !slices.Equal(ids, []string{"c", "b"}) {
		t.Errorf("ListByOwner(limit 2) = %v", ids)
	}

	none, err := repo.ListByOwner(ctx, "nobody", 0)
	if err != nil || len(none) != 0 {
		t.Errorf("ListByOwner(nobody) = %v, %v", none, err)
	}
}

func TestRepository_Backfill(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Put(ctx, record("bare1", "alice", "t1", base, nil)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, record("full", "alice", "t2", base.Add(time.Second), []float32{1, 0})); err != nil {
		t.Fatal(err)
	}
	if err := repo.Put(ctx, record("bare2", "bob", "t3", base.Add(2*time.Second), nil)); err != nil {
		t.Fatal(err)
	}

	missing, err := repo.ListMissingEmbeddings(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if ids := recordIDs(missing); !slices.Equal(ids, []string{"bare1", "bare2"}) {
		t.Fatalf("ListMissingEmbeddings = %v", ids)
	}

	if err := repo.SetEmbedding(ctx, "bare1", []float32{0, 1}); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	if err := repo.SetEmbedding(ctx, "full", []float32{9, 9}); err != nil {
		t.Fatalf("SetEmbedding on embedded record: %v", err)
	}
	if err := repo.SetEmbedding(ctx, "ghost", []float32{1}); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("SetEmbedding(ghost) = %v, want ErrNotFound", err)
	}

	full, _ := repo.Get(ctx, "alice", "full")
	if !slices.Equal(full.Embedding, []float32{1, 0}) {
		t.Errorf("existing embedding overwritten: %v", full.Embedding)
	}
	missing, _ = repo.ListMissingEmbeddings(ctx, 0)
	if ids := recordIDs(missing); !slices.Equal(ids, []string{"bare2"}) {
		t.Errorf("after backfill missing = %v", ids)
	}
}

func TestRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, rec := range []memory.Record{
		record("a1", "alice", "t1", base, nil),
		record("a2", "alice", "t1", base, nil),
		record("a3", "alice", "t2", base, nil),
		record("b1", "bob", "t1", base, nil),
	} {
		if err := repo.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := repo.DeleteTurn(ctx, "alice", "t1")
	if err != nil || n != 2 {
		t.Fatalf("DeleteTurn = %d, %v; want 2", n, err)
	}
	n, err = repo.DeleteOwner(ctx, "alice")
	if err != nil || n != 1 {
		t.Fatalf("DeleteOwner = %d, %v; want 1", n, err)
	}
	if c, _ := repo.Count(ctx); c != 1 {
		t.Errorf("Count = %d, want bob's record only", c)
	}
}

func TestRepository_WithStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	store, err := ltm.NewStore(repo, &fixedEmbedder{}, ltm.Config{}, ltm.Options{})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := store.Store(ctx, "alice", memory.NewTurn("alice", "s1", memory.RoleUser, "persisted across restarts"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := store.Retrieve(ctx, "alice", "persisted across restarts", 1, 0.99)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Record.ID != rec.ID {
		t.Fatalf("Retrieve = %+v", got)
	}
}

func TestRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ltm.db")
	ctx := context.Background()

	repo, err := Open(ctx, path, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := repo.Put(ctx, record("r1", "alice", "t1", base, []float32{1})); err != nil {
		t.Fatal(err)
	}
	_ = repo.Close()

	repo, err = Open(ctx, path, Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = repo.Close() }()
	if c, _ := repo.Count(ctx); c != 1 {
		t.Errorf("Count after reopen = %d, want 1", c)
	}
}

func TestModule_Provision(t *testing.T) {
	dir := t.TempDir()
	m := &Module{}
	m.config.defaults()
	appCtx := core.NewAppContext(slog.Default(), dir)

	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.config.Path != filepath.Join(dir, defaultDBFile) {
		t.Errorf("Path = %q", m.config.Path)
	}
	if _, err := core.Lookup[ltm.Repository](appCtx, ltm.ServiceRepository); err != nil {
		t.Errorf("repository service not registered: %v", err)
	}
}

func TestModule_RelativePath(t *testing.T) {
	dir := t.TempDir()
	m := &Module{config: Config{Path: "nested/memories.db"}}
	appCtx := core.NewAppContext(slog.Default(), dir)
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	if want := filepath.Join(dir, "nested", "memories.db"); m.config.Path != want {
		t.Errorf("Path = %q, want %q", m.config.Path, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", Config{}, true},
		{"full sync", Config{Synchronous: "FULL"}, true},
		{"negative busy timeout", Config{BusyTimeout: -time.Second}, false},
		{"unknown sync level", Config{Synchronous: "off"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.defaults()
			if err := tt.cfg.validate(); (err == nil) != tt.ok {
				t.Errorf("validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func recordIDs(recs []memory.Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}

// fixedEmbedder maps every text to the same direction per length bucket.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }
