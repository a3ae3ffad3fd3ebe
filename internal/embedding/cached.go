package embedding

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/skillminer/memoryd/internal/memory"
)

// DefaultCacheEntries bounds the number of cached vectors.
const DefaultCacheEntries = 4096

// Cached memoizes another embedder. Concurrent requests for the same text
// share one upstream call. Failures are never cached.
type Cached struct {
	inner memory.Embedder
	cache *ristretto.Cache
	group singleflight.Group
}

var _ memory.Embedder = (*Cached)(nil)

// NewCached wraps inner with a cache holding up to maxEntries vectors.
func NewCached(inner memory.Embedder, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: creating cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns a cached vector for text or computes it upstream.
// Callers own the returned slice.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return slices.Clone(v.([]float32)), nil
	}

	// The shared call outlives any one caller; each caller waits on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(text, func() (any, error) {
		vec, err := c.inner.Embed(shared, text)
		if err != nil {
			return nil, err
		}
		c.cache.Set(text, vec, 1)
		c.cache.Wait()
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]float32)), nil
	}
}

// Dimensions returns the wrapped embedder's dimension.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// Unwrap returns the wrapped embedder.
func (c *Cached) Unwrap() memory.Embedder { return c.inner }

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
