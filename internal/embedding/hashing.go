// Package embedding provides embedder building blocks that do not depend on
// a remote model: a deterministic feature-hashing embedder and a caching
// decorator for any memory.Embedder.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/skillminer/memoryd/internal/memory"
)

// DefaultDimensions matches the dimension of the hosted embedding model so
// the two can share a vector column.
const DefaultDimensions = 1536

// Hashing embeds text as a signed bag of words: each lower-cased token is
// hashed into one of Dimensions buckets and the result is L2-normalized.
// Texts sharing vocabulary get a positive cosine similarity; identical texts
// get exactly 1.
type Hashing struct {
	dimensions int
}

var _ memory.Embedder = (*Hashing)(nil)

// NewHashing creates a hashing embedder. Non-positive dims fall back to
// DefaultDimensions.
func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Hashing{dimensions: dims}
}

// Embed returns the hashed vector for text.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, h.dimensions)
	for _, tok := range Tokenize(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dimensions))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return Normalize(vec), nil
}

// Dimensions returns the vector size.
func (h *Hashing) Dimensions() int { return h.dimensions }

// Tokenize splits text into lower-cased runs of letters and digits.
// '+', '#' and '.' inside a word are kept so "c++", "c#" and "node.js"
// survive as single tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#' && r != '.'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Normalize scales vec to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
