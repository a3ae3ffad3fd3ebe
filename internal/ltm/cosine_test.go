package ltm

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/skillminer/memoryd/internal/memory"
)

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankResults(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rs := []memory.Result{
		{Record: memory.Record{ID: "a", CreatedAt: base}, Similarity: 0.5},
		{Record: memory.Record{ID: "b", CreatedAt: base.Add(time.Hour)}, Similarity: 0.9},
		{Record: memory.Record{ID: "c", CreatedAt: base.Add(2 * time.Hour)}, Similarity: 0.5},
		{Record: memory.Record{ID: "d", CreatedAt: base}, Similarity: 0.5},
	}
	got := RankResults(rs, 3)
	want := []string{"b", "c", "a"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].Record.ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].Record.ID, id)
		}
	}
}

func TestScanSearcher_Limit(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	vec := []float32{1, 0}
	for i, id := range []string{"old", "mid", "new"} {
		rec := memory.Record{ID: id, OwnerID: "o", Text: id, Embedding: vec, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Put(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := scanSearcher{repo: repo, limit: 2}.search(ctx, "o", vec, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Record.ID != "new" || got[1].Record.ID != "mid" {
		t.Fatalf("got %+v, want the two newest records", got)
	}
}
