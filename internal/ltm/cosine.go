package ltm

import (
	"cmp"
	"math"
	"slices"

	"github.com/skillminer/memoryd/internal/memory"
)

// Cosine returns dot(a,b) / (|a| |b|), or 0 when either norm is zero or the
// lengths differ. The result is clamped to [-1, 1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return max(-1, min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}

// RankResults orders results by similarity descending, breaking ties by the
// newer CreatedAt and then by record ID, and keeps at most topK.
func RankResults(results []memory.Result, topK int) []memory.Result {
	slices.SortStableFunc(results, func(a, b memory.Result) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := b.Record.CreatedAt.Compare(a.Record.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.ID, b.Record.ID)
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
