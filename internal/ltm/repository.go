// Package ltm implements long-term memory: durable per-owner records of
// embedded turn snippets and their retrieval by cosine similarity.
package ltm

import (
	"context"

	"github.com/skillminer/memoryd/internal/memory"
)

// Repository is the durable record store. Records are append-only except for
// SetEmbedding, which may only fill in a missing embedding.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Put inserts a new record.
	Put(ctx context.Context, rec memory.Record) error

	// Get returns one record of an owner, or memory.ErrNotFound.
	Get(ctx context.Context, ownerID, id string) (memory.Record, error)

	// ListByOwner returns an owner's records newest first.
	// A limit <= 0 returns all of them.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]memory.Record, error)

	// ListMissingEmbeddings returns up to limit records stored without an
	// embedding, oldest first.
	ListMissingEmbeddings(ctx context.Context, limit int) ([]memory.Record, error)

	// SetEmbedding stores emb on a record that has none. It is a no-op for
	// records that already carry an embedding.
	SetEmbedding(ctx context.Context, id string, emb []float32) error

	// DeleteOwner removes every record of an owner.
	DeleteOwner(ctx context.Context, ownerID string) (int, error)

	// DeleteTurn removes the records derived from one turn.
	DeleteTurn(ctx context.Context, ownerID, turnID string) (int, error)
}

// Index is a native similarity facility kept alongside the repository.
// Query must honour the same contract as Store.Retrieve: only the owner's
// embedded records, similarity >= threshold, at most topK, best first.
type Index interface {
	Upsert(ctx context.Context, rec memory.Record) error
	Query(ctx context.Context, ownerID string, vector []float32, topK int, threshold float64) ([]memory.Result, error)
	DeleteOwner(ctx context.Context, ownerID string) error
	DeleteTurn(ctx context.Context, ownerID, turnID string) error
}

// repositoryBacked is implemented by indexes that answer queries from the
// repository's own storage. Store never fills such an index.
type repositoryBacked interface {
	BackedByRepository() bool
}

// Service names under which storage modules publish their implementations.
const (
	ServiceRepository = "ltm.repository"
	ServiceIndex      = "ltm.index"
)
