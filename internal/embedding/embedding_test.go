package embedding

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashing_Deterministic(t *testing.T) {
	t.Parallel()

	h := NewHashing(128)
	a, err := h.Embed(context.Background(), "I know Python and SQL")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := h.Embed(context.Background(), "i KNOW python, and sql!")
	if len(a) != 128 {
		t.Fatalf("len = %d, want 128", len(a))
	}
	if got := dot(a, b); math.Abs(got-1) > 1e-5 {
		t.Errorf("identical token sets should have cosine 1, got %f", got)
	}
}

func TestHashing_SharedVocabularyRanksHigher(t *testing.T) {
	t.Parallel()

	h := NewHashing(DefaultDimensions)
	ctx := context.Background()
	query, _ := h.Embed(ctx, "What programming languages do I know?")
	python, _ := h.Embed(ctx, "I know Python and SQL")
	guitar, _ := h.Embed(ctx, "I enjoy playing guitar")

	if dot(query, python) <= dot(query, guitar) {
		t.Errorf("python %.3f should outrank guitar %.3f", dot(query, python), dot(query, guitar))
	}
}

func TestHashing_EmptyText(t *testing.T) {
	t.Parallel()

	vec, err := NewHashing(8).Embed(context.Background(), "  ")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", vec)
		}
	}
}

func TestHashing_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashing(8).Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewHashing_DefaultDimensions(t *testing.T) {
	t.Parallel()

	if got := NewHashing(0).Dimensions(); got != DefaultDimensions {
		t.Errorf("Dimensions() = %d, want %d", got, DefaultDimensions)
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := Tokenize("I use Node.js, C++ and C#. Done.")
	want := []string{"i", "use", "node.js", "c++", "and", "c#", "done"}
	if !slices.Equal(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v", v)
	}
	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}
}

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }

func TestCached_ReusesVectors(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	c, err := NewCached(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	ctx := context.Background()
	a, _ := c.Embed(ctx, "hello")
	a[0] = -1 // callers own the slice
	b, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if b[0] != 5 {
		t.Errorf("cached vector was mutated: %v", b)
	}
	if n := inner.calls.Load(); n != 1 {
		t.Errorf("inner calls = %d, want 1", n)
	}
	if c.Dimensions() != 2 {
		t.Errorf("Dimensions() = %d", c.Dimensions())
	}
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{err: errors.New("rate limited")}
	c, err := NewCached(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	for range 2 {
		if _, err := c.Embed(context.Background(), "x"); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("inner calls = %d, want 2", n)
	}
}

func TestCached_Concurrent(t *testing.T) {
	t.Parallel()

	inner := &countingEmbedder{}
	c, err := NewCached(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Embed(context.Background(), "same text"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if n := inner.calls.Load(); n > 16 || n < 1 {
		t.Errorf("inner calls = %d", n)
	}
}

// gatedEmbedder blocks until release is closed and records whether its ctx
// was still live at that point.
type gatedEmbedder struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  atomic.Value
}

func (g *gatedEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		g.ctxErr.Store(err)
		return nil, err
	}
	return []float32{1, 0}, nil
}

func (g *gatedEmbedder) Dimensions() int { return 2 }

func TestCached_CancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()

	inner := &gatedEmbedder{started: make(chan struct{}), release: make(chan struct{})}
	c, err := NewCached(inner, 16)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Embed(ctx, "shared")
		first <- err
	}()
	<-inner.started
	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v", err)
	}

	second := make(chan error, 1)
	go func() {
		_, err := c.Embed(context.Background(), "shared")
		second <- err
	}()
	close(inner.release)
	if err := <-second; err != nil {
		t.Fatalf("second caller err = %v", err)
	}
	if err := inner.ctxErr.Load(); err != nil {
		t.Errorf("upstream call saw %v from the cancelled caller", err)
	}
}
