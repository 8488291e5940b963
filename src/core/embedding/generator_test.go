package embedding_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"supportkb/src/core/embedding"
)

// fakeProvider derives a deterministic vector from the text so tests can
// verify ordering. Failures are scripted per text.
type fakeProvider struct {
	mu       sync.Mutex
	dims     int
	calls    int32
	failures map[string]int // text -> number of failures before success
	badDims  map[string]int // text -> dimension to return instead
}

func (p *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&p.calls, 1)

	p.mu.Lock()
	if n, ok := p.failures[text]; ok && n > 0 {
		p.failures[text] = n - 1
		p.mu.Unlock()
		return nil, errors.New("provider: temporary failure")
	}
	dims := p.dims
	if d, ok := p.badDims[text]; ok {
		dims = d
	}
	p.mu.Unlock()

	vector := make([]float32, dims)
	for i := range vector {
		vector[i] = float32(len(text) + i)
	}
	return vector, nil
}

func newGenerator(t *testing.T, p embedding.Provider, dims, concurrency int) *embedding.Generator {
	t.Helper()
	g, err := embedding.NewGenerator(p, dims, concurrency,
		embedding.WithRetryInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	p := &fakeProvider{dims: 4}
	g := newGenerator(t, p, 4, 3)

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = "text-" + strings.Repeat("x", i) // distinct lengths per input
	}

	vectors, err := g.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("EmbedBatch() returned %d vectors, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != 4 {
			t.Fatalf("vector %d has %d components", i, len(v))
		}
		if v[0] != float32(len(texts[i])) {
			t.Errorf("vector %d does not correspond to input %d", i, i)
		}
	}
}

func TestEmbedBatchRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{
		dims:     3,
		failures: map[string]int{"flaky": 2},
	}
	g := newGenerator(t, p, 3, 2)

	vectors, err := g.EmbedBatch(context.Background(), []string{"stable", "flaky"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("EmbedBatch() returned %d vectors", len(vectors))
	}
}

func TestEmbedBatchExhaustsRetries(t *testing.T) {
	p := &fakeProvider{
		dims:     3,
		failures: map[string]int{"down": 100},
	}
	g := newGenerator(t, p, 3, 1)

	if _, err := g.EmbedBatch(context.Background(), []string{"down"}); err == nil {
		t.Fatal("EmbedBatch() expected error after exhausting retries")
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	p := &fakeProvider{
		dims:    3,
		badDims: map[string]int{"short": 2},
	}
	g := newGenerator(t, p, 3, 1)

	before := atomic.LoadInt32(&p.calls)
	_, err := g.EmbedBatch(context.Background(), []string{"short"})
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Fatalf("EmbedBatch() error = %v, want ErrDimensionMismatch", err)
	}
	// Dimension mismatch is a validation error, there is nothing to retry.
	if got := atomic.LoadInt32(&p.calls) - before; got != 1 {
		t.Errorf("provider called %d times for a validation failure, want 1", got)
	}
}

func TestEmbedQuery(t *testing.T) {
	p := &fakeProvider{dims: 5}
	g := newGenerator(t, p, 5, 1)

	vector, err := g.EmbedQuery(context.Background(), "hoe reset ik mijn wachtwoord")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 5 {
		t.Errorf("EmbedQuery() returned %d components, want 5", len(vector))
	}
	if g.Dims() != 5 {
		t.Errorf("Dims() = %d, want 5", g.Dims())
	}
}

func TestEmbedBatchCancellation(t *testing.T) {
	p := &fakeProvider{
		dims:     3,
		failures: map[string]int{"stuck": 1000},
	}
	g := newGenerator(t, p, 3, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := g.EmbedBatch(ctx, []string{"stuck"}); err == nil {
		t.Fatal("EmbedBatch() expected error after cancellation")
	}
}
