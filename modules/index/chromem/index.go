package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
)

// Metadata keys stored alongside each document.
const (
	metaOwner     = "owner_id"
	metaSession   = "session_id"
	metaTurn      = "turn_id"
	metaRole      = "role"
	metaCreatedAt = "created_at"
	metaEntities  = "entities"
)

// Index is an ltm.Index over chromem-go. Each owner gets a collection of its
// own, so a query never sees another owner's documents.
type Index struct {
	db *chromem.DB
}

var _ ltm.Index = (*Index)(nil)

// NewIndex returns an index backed by db.
func NewIndex(db *chromem.DB) *Index {
	return &Index{db: db}
}

// NewMemoryIndex returns an index that lives only in process memory.
func NewMemoryIndex() *Index {
	return NewIndex(chromem.NewDB())
}

func collectionName(ownerID string) string {
	return "owner_" + ownerID
}

func (x *Index) collection(ownerID string) (*chromem.Collection, error) {
	col, err := x.db.GetOrCreateCollection(collectionName(ownerID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection for %s: %w", ownerID, err)
	}
	return col, nil
}

// Upsert adds rec's embedding. Records without one are ignored.
func (x *Index) Upsert(ctx context.Context, rec memory.Record) error {
	if !rec.Embedded() || zeroVector(rec.Embedding) {
		return nil
	}
	col, err := x.collection(rec.OwnerID)
	if err != nil {
		return err
	}

	ents, err := json.Marshal(rec.Entities)
	if err != nil {
		return fmt.Errorf("chromem: marshal entities: %w", err)
	}
	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: append([]float32(nil), rec.Embedding...),
		Metadata: map[string]string{
			metaOwner:     rec.OwnerID,
			metaSession:   rec.SessionID,
			metaTurn:      rec.TurnID,
			metaRole:      string(rec.Role),
			metaCreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			metaEntities:  string(ents),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add document %s: %w", rec.ID, err)
	}
	return nil
}

// Query returns the owner's documents at or above threshold, best first.
// chromem orders by similarity alone, so every document is fetched and
// ltm.RankResults applies the newest-first tie-break before the topK cut.
func (x *Index) Query(ctx context.Context, ownerID string, vector []float32, topK int, threshold float64) ([]memory.Result, error) {
	out := []memory.Result{}
	if topK < 1 || zeroVector(vector) {
		return out, nil
	}
	col := x.db.GetCollection(collectionName(ownerID), nil)
	if col == nil {
		return out, nil
	}

	n := col.Count()
	if n == 0 {
		return out, nil
	}
	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	for _, r := range results {
		sim := float64(r.Similarity)
		if sim < threshold {
			continue
		}
		rec, err := recordFrom(r)
		if err != nil {
			return nil, err
		}
		out = append(out, memory.Result{Record: rec, Similarity: sim})
	}
	return ltm.RankResults(out, topK), nil
}

// DeleteOwner drops the owner's collection.
func (x *Index) DeleteOwner(_ context.Context, ownerID string) error {
	if err := x.db.DeleteCollection(collectionName(ownerID)); err != nil {
		return fmt.Errorf("chromem: delete collection for %s: %w", ownerID, err)
	}
	return nil
}

// DeleteTurn removes the documents derived from turnID.
func (x *Index) DeleteTurn(ctx context.Context, ownerID, turnID string) error {
	col := x.db.GetCollection(collectionName(ownerID), nil)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{metaTurn: turnID}, nil); err != nil {
		return fmt.Errorf("chromem: delete turn %s: %w", turnID, err)
	}
	return nil
}

func recordFrom(r chromem.Result) (memory.Record, error) {
	rec := memory.Record{
		ID:        r.ID,
		OwnerID:   r.Metadata[metaOwner],
		SessionID: r.Metadata[metaSession],
		TurnID:    r.Metadata[metaTurn],
		Role:      memory.Role(r.Metadata[metaRole]),
		Text:      r.Content,
		Embedding: r.Embedding,
	}
	if ts := r.Metadata[metaCreatedAt]; ts != "" {
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return memory.Record{}, fmt.Errorf("chromem: document %s created_at: %w", r.ID, err)
		}
		rec.CreatedAt = at
	}
	if raw := r.Metadata[metaEntities]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &rec.Entities); err != nil {
			return memory.Record{}, fmt.Errorf("chromem: document %s entities: %w", r.ID, err)
		}
	}
	return rec, nil
}

func zeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
