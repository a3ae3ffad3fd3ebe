package security

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Buckets of the memory API. Auth attempts are counted separately so a
// credential-guessing client is throttled before it reaches the read and
// write buckets.
const (
	BucketAuth  = "auth"
	BucketRead  = "read"
	BucketWrite = "write"
)

// RateLimitConfig holds per-minute limits. Zero means the default.
type RateLimitConfig struct {
	AuthPerMin  int `yaml:"auth_per_min"`
	ReadsPerMin int `yaml:"reads_per_min"`

	// WritesPerMin covers turn updates, deletions, backfills and job runs.
	WritesPerMin int `yaml:"writes_per_min"`
}

// BucketUsage is a point-in-time view of one bucket, reported on /status.
type BucketUsage struct {
	Bucket   string `json:"bucket"`
	Used     int    `json:"used"`
	Limit    int    `json:"limit"`
	Rejected int64  `json:"rejected"`
}

// RateLimiter counts events per bucket over a sliding one-minute window.
// A nil *RateLimiter allows everything.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*window
	now     func() time.Time
}

type window struct {
	limit    int
	hits     []time.Time // oldest first
	rejected int64
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	orDefault := func(v, def int) int {
		if v <= 0 {
			return def
		}
		return v
	}
	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*window{
			BucketAuth:  {limit: orDefault(cfg.AuthPerMin, 600)},
			BucketRead:  {limit: orDefault(cfg.ReadsPerMin, 1200)},
			BucketWrite: {limit: orDefault(cfg.WritesPerMin, 600)},
		},
	}
}

// Allow records one event in bucket, or returns ErrRateLimited when the
// last minute is full. Unknown buckets are not limited.
func (rl *RateLimiter) Allow(bucket string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.buckets[bucket]
	if !ok {
		return nil
	}
	now := rl.now()
	w.trim(now)
	if len(w.hits) >= w.limit {
		w.rejected++
		return ErrRateLimited
	}
	w.hits = append(w.hits, now)
	return nil
}

// Usage reports every bucket, sorted by name.
func (rl *RateLimiter) Usage() []BucketUsage {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	out := make([]BucketUsage, 0, len(rl.buckets))
	for name, w := range rl.buckets {
		w.trim(now)
		out = append(out, BucketUsage{Bucket: name, Used: len(w.hits), Limit: w.limit, Rejected: w.rejected})
	}
	slices.SortFunc(out, func(a, b BucketUsage) int { return strings.Compare(a.Bucket, b.Bucket) })
	return out
}

func (w *window) trim(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i, _ := slices.BinarySearchFunc(w.hits, cutoff, func(t, c time.Time) int { return t.Compare(c) })
	w.hits = w.hits[i:]
}
