package ltm

import (
	"context"

	"github.com/skillminer/memoryd/internal/memory"
)

// Strategy names reported to the metrics recorder.
const (
	StrategyNative = "native"
	StrategyScan   = "scan"
)

// searcher is one way of answering a similarity query. Both implementations
// honour the same contract so Store can swap them freely.
type searcher interface {
	search(ctx context.Context, ownerID string, vec []float32, topK int, threshold float64) ([]memory.Result, error)
	name() string
}

// scanSearcher ranks an owner's records in process.
type scanSearcher struct {
	repo  Repository
	limit int // 0 scans every record
}

func (s scanSearcher) name() string { return StrategyScan }

func (s scanSearcher) search(ctx context.Context, ownerID string, vec []float32, topK int, threshold float64) ([]memory.Result, error) {
	recs, err := s.repo.ListByOwner(ctx, ownerID, s.limit)
	if err != nil {
		return nil, err
	}
	var results []memory.Result
	for _, rec := range recs {
		if !rec.Embedded() || rec.OwnerID != ownerID {
			continue
		}
		sim := Cosine(vec, rec.Embedding)
		if sim < threshold {
			continue
		}
		results = append(results, memory.Result{Record: rec, Similarity: sim})
	}
	return RankResults(results, topK), nil
}

// nativeSearcher delegates to an Index. Results are re-filtered and re-ranked
// so an index with looser semantics cannot break the contract.
type nativeSearcher struct {
	index Index
}

func (s nativeSearcher) name() string { return StrategyNative }

func (s nativeSearcher) search(ctx context.Context, ownerID string, vec []float32, topK int, threshold float64) ([]memory.Result, error) {
	raw, err := s.index.Query(ctx, ownerID, vec, topK, threshold)
	if err != nil {
		return nil, err
	}
	results := raw[:0]
	for _, r := range raw {
		if r.Record.OwnerID == ownerID && r.Similarity >= threshold {
			r.Similarity = min(1, r.Similarity)
			results = append(results, r)
		}
	}
	return RankResults(results, topK), nil
}
