package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider embeds each text as a one-element vector derived from its
// content, so order preservation is observable. failOn and failUntil drive
// failure scenarios per batch.
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	failWord string
	failErr  error
	// failUntil makes batches containing failWord fail only for the first n
	// attempts, succeeding afterwards. Zero means fail forever.
	failUntil int
	attempts  map[string]int
}

func (p *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	for _, t := range texts {
		if p.failWord != "" && strings.Contains(t, p.failWord) {
			if p.attempts == nil {
				p.attempts = map[string]int{}
			}
			p.attempts[t]++
			if p.failUntil == 0 || p.attempts[t] <= p.failUntil {
				return nil, p.failErr
			}
		}
	}

	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = []float32{float32(len(t))}
	}
	return vectors, nil
}

func (p *fakeProvider) Dimension() int    { return 1 }
func (p *fakeProvider) ModelName() string { return "fake-embedder" }

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.Repeat("x", i+1)
	}
	return out
}

func TestClientEmbed(t *testing.T) {
	t.Run("Preserves Order Under Concurrent Dispatch", func(t *testing.T) {
		client := NewClient(&fakeProvider{}, WithBatchSize(1), WithConcurrency(8))

		in := []string{"a", "bb", "ccc"}
		vectors, err := client.Embed(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Equal(t, []float32{1}, vectors[0])
		assert.Equal(t, []float32{2}, vectors[1])
		assert.Equal(t, []float32{3}, vectors[2])
	})

	t.Run("Splits Into Batches", func(t *testing.T) {
		p := &fakeProvider{}
		client := NewClient(p, WithBatchSize(4), WithConcurrency(1))

		vectors, err := client.Embed(context.Background(), texts(10))
		require.NoError(t, err)
		assert.Len(t, vectors, 10)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("Empty Input", func(t *testing.T) {
		client := NewClient(&fakeProvider{})
		vectors, err := client.Embed(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})
}

func TestClientRetry(t *testing.T) {
	t.Run("Transient Failure Then Success", func(t *testing.T) {
		p := &fakeProvider{failWord: "flaky", failErr: errors.New("rate limited"), failUntil: 2}
		client := NewClient(p,
			WithBatchSize(8),
			WithMaxRetries(3),
			WithBaseBackoff(time.Millisecond))

		vectors, err := client.Embed(context.Background(), []string{"flaky text"})
		require.NoError(t, err)
		assert.Len(t, vectors, 1)
	})

	t.Run("Exhaustion Is Batch Scoped", func(t *testing.T) {
		p := &fakeProvider{failWord: "doomed", failErr: errors.New("timeout")}
		client := NewClient(p,
			WithBatchSize(1),
			WithConcurrency(2),
			WithMaxRetries(1),
			WithBaseBackoff(time.Millisecond))

		in := []string{"fine one", "doomed two", "fine three"}
		batches, err := client.EmbedBatches(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, batches, 3)

		assert.NoError(t, batches[0].Err)
		assert.NotNil(t, batches[0].Vectors)
		assert.ErrorIs(t, batches[1].Err, ErrUnavailable)
		assert.Nil(t, batches[1].Vectors)
		assert.NoError(t, batches[2].Err)
		assert.NotNil(t, batches[2].Vectors)
	})

	t.Run("Non Retryable Aborts Immediately", func(t *testing.T) {
		p := &fakeProvider{
			failWord: "secret",
			failErr:  fmt.Errorf("%w: invalid api key", ErrNotRetryable),
		}
		client := NewClient(p,
			WithBatchSize(1),
			WithConcurrency(1),
			WithMaxRetries(5),
			WithBaseBackoff(time.Millisecond))

		_, err := client.EmbedBatches(context.Background(), []string{"secret text", "other"})
		assert.ErrorIs(t, err, ErrNotRetryable)
		// No retries were burned on a permanent failure.
		assert.Equal(t, 1, p.attempts["secret text"])
	})

	t.Run("Vector Count Mismatch Is Not Retryable", func(t *testing.T) {
		client := NewClient(mismatchProvider{}, WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
		_, err := client.Embed(context.Background(), []string{"a", "b"})
		assert.ErrorIs(t, err, ErrNotRetryable)
	})

	t.Run("Dimension Mismatch Is Not Retryable", func(t *testing.T) {
		// The model returns 2-dim vectors against a configured dimension of 3,
		// so the failure must abort instead of burning retries.
		p := &wrongDimensionProvider{}
		client := NewClient(p, WithMaxRetries(4), WithBaseBackoff(time.Millisecond))
		_, err := client.Embed(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, ErrNotRetryable)
		assert.Equal(t, 1, p.calls)
	})
}

type mismatchProvider struct{}

func (mismatchProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}
func (mismatchProvider) Dimension() int    { return 1 }
func (mismatchProvider) ModelName() string { return "mismatch" }

type wrongDimensionProvider struct{ calls int }

func (p *wrongDimensionProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2}
	}
	return out, nil
}
func (p *wrongDimensionProvider) Dimension() int    { return 3 }
func (p *wrongDimensionProvider) ModelName() string { return "wrong-dimension" }

func TestEmbedQuery(t *testing.T) {
	client := NewClient(&fakeProvider{})
	vector, err := client.EmbedQuery(context.Background(), "what is ai")
	require.NoError(t, err)
	assert.Equal(t, []float32{10}, vector)
}

func TestEmbedRespectsCancellation(t *testing.T) {
	p := &fakeProvider{failWord: "x", failErr: errors.New("timeout")}
	client := NewClient(p,
		WithBatchSize(1),
		WithMaxRetries(10),
		WithBaseBackoff(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Embed(ctx, []string{"x"})
	assert.Error(t, err)
}
