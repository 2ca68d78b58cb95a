package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oclient "askdocs/internal/adapter/openai"
	"askdocs/internal/embedding"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *oclient.Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := oclient.NewClient(oclient.Config{
		APIKey:  "test-key",
		BaseURL: ts.URL,
	})
	require.NoError(t, err)
	return client
}

func TestClient_EmbedBatch(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"object": "list",
				"model":  "text-embedding-3-small",
				"data": []map[string]interface{}{
					{"object": "embedding", "index": 1, "embedding": []float64{0.3, 0.4}},
					{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2}},
				},
			})
		})

		vectors, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		// Results come back keyed by index, not response order.
		assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
		assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	})

	t.Run("Client Error Is Not Retryable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "unknown model", "type": "invalid_request_error"},
			})
		})

		_, err := client.EmbedBatch(context.Background(), []string{"text"})
		require.Error(t, err)
		assert.ErrorIs(t, err, embedding.ErrNotRetryable)
	})

	t.Run("Rate Limit Stays Retryable", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "rate limited", "type": "rate_limit_error"},
			})
		})

		_, err := client.EmbedBatch(context.Background(), []string{"text"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, embedding.ErrNotRetryable)
	})
}

func TestClient_Synthesize(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"message": map[string]string{"role": "assistant", "content": "grounded answer"}},
				},
			})
		})

		answer, err := client.Synthesize(context.Background(), "system", "prompt")
		require.NoError(t, err)
		assert.Equal(t, "grounded answer", answer)
	})

	t.Run("Empty Choices Is An Error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
		})

		_, err := client.Synthesize(context.Background(), "system", "prompt")
		assert.Error(t, err)
	})
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := oclient.NewClient(oclient.Config{})
	assert.ErrorContains(t, err, "api key not set")
}
