package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// ErrDimensionMismatch is returned when a provider response does not have
// exactly the configured number of components. Such vectors are rejected,
// never truncated or padded.
var ErrDimensionMismatch = errors.New("embedding: provider returned a vector with the wrong dimension")

// Provider generates one embedding vector for one text. Implementations are
// expected to be safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxRetries sets how many times a failed provider call is retried.
func WithMaxRetries(n uint64) Option {
	return func(g *Generator) {
		g.maxRetries = n
	}
}

// WithRetryInterval sets the initial backoff interval between retries.
func WithRetryInterval(d time.Duration) Option {
	return func(g *Generator) {
		g.retryInterval = d
	}
}

// Generator turns chunk texts into fixed-dimension vectors through an
// external embedding provider. Batch calls fan out over a bounded number of
// concurrent provider requests; transient provider failures are retried with
// exponential backoff. Ingestion and retrieval must share one Generator so
// queries and stored chunks live in the same embedding space.
type Generator struct {
	provider      Provider
	dims          int
	concurrency   int
	maxRetries    uint64
	retryInterval time.Duration
}

// NewGenerator creates a Generator producing vectors of exactly dims
// components, issuing at most concurrency provider calls at a time.
func NewGenerator(provider Provider, dims, concurrency int, opts ...Option) (*Generator, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dims)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	g := &Generator{
		provider:      provider,
		dims:          dims,
		concurrency:   concurrency,
		maxRetries:    3,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dims returns the process-wide vector dimension.
func (g *Generator) Dims() int {
	return g.dims
}

// EmbedBatch embeds every text, returning one vector per input in the same
// order. The whole batch fails if any single text cannot be embedded after
// retries; partial results are never returned.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, text := range texts {
		eg.Go(func() error {
			vector, err := g.embedOne(ctx, text)
			if err != nil {
				return fmt.Errorf("failed to embed text %d: %w", i, err)
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single text, used for retrieval queries and the
// single-text HTTP endpoint.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embedOne(ctx, text)
}

func (g *Generator) embedOne(ctx context.Context, text string) ([]float32, error) {
	var vector []float32

	operation := func() error {
		v, err := g.provider.Embed(ctx, text)
		if err != nil {
			return err
		}
		if len(v) != g.dims {
			// A malformed response is a validation failure, not a transient
			// one; retrying the same input would yield the same shape.
			return backoff.Permanent(fmt.Errorf("%w: got %d components, want %d", ErrDimensionMismatch, len(v), g.dims))
		}
		vector = v
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retryInterval
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, g.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return vector, nil
}
