package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Provider is the external embedding capability. Implementations must return
// one vector per input text, in input order, all with the same dimension.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// BatchResult reports the outcome of one dispatched batch. Start and End are
// indices into the original text slice. Exactly one of Vectors and Err is set.
type BatchResult struct {
	Start   int
	End     int
	Vectors [][]float32
	Err     error
}

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 16 * time.Second
)

// Client batches texts into provider calls, retries transient failures with
// exponential backoff, and fans batches out concurrently while reassembling
// results in input order.
type Client struct {
	provider    Provider
	batchSize   int
	concurrency int
	maxRetries  int
	baseBackoff time.Duration
	limiter     *rate.Limiter
}

type Option func(*Client)

func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseBackoff = d
		}
	}
}

// WithRateLimit caps provider calls at rps requests per second across all
// concurrent batches. Zero disables the limiter.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{
		provider:    p,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Dimension() int    { return c.provider.Dimension() }
func (c *Client) ModelName() string { return c.provider.ModelName() }

// EmbedBatches embeds texts in batches dispatched concurrently. Results come
// back ordered by batch start index regardless of completion order. The
// returned error is non-nil only for a non-retryable provider failure or
// context cancellation; transient exhaustion is reported per batch via
// BatchResult.Err so the caller can account for partial failures.
func (c *Client) EmbedBatches(ctx context.Context, texts []string) ([]BatchResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]BatchResult, 0, (len(texts)+c.batchSize-1)/c.batchSize)
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		results = append(results, BatchResult{Start: start, End: end})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i := range results {
		g.Go(func() error {
			b := &results[i]
			vectors, err := c.embedWithRetry(gctx, texts[b.Start:b.End])
			if err != nil {
				b.Err = err
				if errors.Is(err, ErrNotRetryable) {
					// Abort the remaining batches; this will not resolve.
					return err
				}
				slog.WarnContext(gctx, "embedding batch failed",
					"start", b.Start, "end", b.End, "error", err)
				return nil
			}
			b.Vectors = vectors
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Embed is the all-or-nothing form of EmbedBatches: it fails if any batch
// fails and otherwise returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	batches, err := c.EmbedBatches(ctx, texts)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for _, b := range batches {
		if b.Err != nil {
			return nil, b.Err
		}
		vectors = append(vectors, b.Vectors...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string (batch size 1).
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			backoff := c.baseBackoff << (attempt - 1)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, err := c.provider.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts",
					ErrNotRetryable, len(vectors), len(texts))
			}
			// A wrong dimension is a configuration error; retrying the same
			// model cannot fix it.
			if want := c.provider.Dimension(); want > 0 {
				for i, v := range vectors {
					if len(v) != want {
						return nil, fmt.Errorf("%w: vector %d has dimension %d, configured %d",
							ErrNotRetryable, i, len(v), want)
					}
				}
			}
			return vectors, nil
		}
		if errors.Is(err, ErrNotRetryable) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, c.maxRetries+1, lastErr)
}
