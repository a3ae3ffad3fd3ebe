package ltm

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/skillminer/memoryd/internal/memory"
)

// MemoryRepository is a thread-safe, in-process Repository, partitioned by
// owner. Records are lost on restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	byOwner map[string][]memory.Record // insertion order
	owners  map[string]string          // record id → owner id
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byOwner: make(map[string][]memory.Record),
		owners:  make(map[string]string),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// Put inserts rec. Inserting an existing ID fails.
func (r *MemoryRepository) Put(_ context.Context, rec memory.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.owners[rec.ID]; exists {
		return fmt.Errorf("ltm: record %s already exists", rec.ID)
	}
	r.owners[rec.ID] = rec.OwnerID
	r.byOwner[rec.OwnerID] = append(r.byOwner[rec.OwnerID], cloneRecord(rec))
	return nil
}

// Get returns one record.
func (r *MemoryRepository) Get(_ context.Context, ownerID, id string) (memory.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.byOwner[ownerID] {
		if rec.ID == id {
			return cloneRecord(rec), nil
		}
	}
	return memory.Record{}, fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
}

// ListByOwner returns the owner's records newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string, limit int) ([]memory.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.byOwner[ownerID]
	out := make([]memory.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneRecord(rec))
	}
	slices.SortStableFunc(out, func(a, b memory.Record) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListMissingEmbeddings returns records without an embedding, oldest first.
func (r *MemoryRepository) ListMissingEmbeddings(_ context.Context, limit int) ([]memory.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []memory.Record
	for _, recs := range r.byOwner {
		for _, rec := range recs {
			if !rec.Embedded() {
				out = append(out, cloneRecord(rec))
			}
		}
	}
	slices.SortStableFunc(out, func(a, b memory.Record) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetEmbedding fills in a missing embedding.
func (r *MemoryRepository) SetEmbedding(_ context.Context, id string, emb []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[id]
	if !ok {
		return fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
	}
	recs := r.byOwner[owner]
	for i := range recs {
		if recs[i].ID == id && !recs[i].Embedded() {
			recs[i].Embedding = slices.Clone(emb)
		}
	}
	return nil
}

// DeleteOwner removes all of an owner's records.
func (r *MemoryRepository) DeleteOwner(_ context.Context, ownerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := r.byOwner[ownerID]
	for _, rec := range recs {
		delete(r.owners, rec.ID)
	}
	delete(r.byOwner, ownerID)
	return len(recs), nil
}

// DeleteTurn removes the records derived from turnID.
func (r *MemoryRepository) DeleteTurn(_ context.Context, ownerID, turnID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recs := r.byOwner[ownerID]
	kept := recs[:0]
	n := 0
	for _, rec := range recs {
		if rec.TurnID == turnID {
			delete(r.owners, rec.ID)
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.byOwner[ownerID] = kept
	return n, nil
}

// Len returns the total number of records.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

func cloneRecord(rec memory.Record) memory.Record {
	rec.Embedding = slices.Clone(rec.Embedding)
	if rec.Entities != nil {
		ents := make(memory.Entities, len(rec.Entities))
		for k, v := range rec.Entities {
			ents[k] = slices.Clone(v)
		}
		rec.Entities = ents
	}
	return rec
}
