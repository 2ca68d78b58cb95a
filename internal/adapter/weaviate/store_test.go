package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "askdocs/internal/adapter/weaviate"
	"askdocs/internal/indexing"
	"askdocs/internal/retrieval"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	assert.NoError(t, err)
	return client, ts
}

func TestStore_Upsert(t *testing.T) {
	var gotIDs []string
	created := map[string]bool{}
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}

		// Create-only endpoint: Weaviate 422s a second create with the same
		// id, so the store must never reach this path for a re-upsert.
		if r.Method == "POST" && r.URL.Path == "/v1/objects" {
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			id := body["id"].(string)
			if created[id] {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": []map[string]string{{"message": "id '" + id + "' already exists"}},
				})
				return
			}
			created[id] = true
			gotIDs = append(gotIDs, id)
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
			return
		}

		// Create-or-replace endpoint.
		assert.Equal(t, "PUT", r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/objects/DocumentChunk/"))

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		gotIDs = append(gotIDs, body["id"].(string))
		props := body["properties"].(map[string]interface{})
		assert.Equal(t, "test content", props["text"])
		assert.Equal(t, "doc-1", props["documentId"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(body)
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	record := indexing.VectorRecord{
		ID:     "doc-1_chunk_0",
		Vector: []float32{0.1, 0.2},
		Payload: indexing.RecordPayload{
			DocumentID: "doc-1",
			Source:     "src",
			Text:       "test content",
			ChunkIndex: 0,
		},
	}

	require.NoError(t, store.Upsert(context.Background(), []indexing.VectorRecord{record}))
	require.Len(t, gotIDs, 1)

	// Re-upserting the same chunk id replaces the stored object; against a
	// create-only write the second call would have failed with 422.
	require.NoError(t, store.Upsert(context.Background(), []indexing.VectorRecord{record}))
	require.Len(t, gotIDs, 2)
	assert.Equal(t, gotIDs[0], gotIDs[1])
}

func TestStore_DeleteByDocument(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, "DELETE", r.Method)

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		match := body["match"].(map[string]interface{})
		where := match["where"].(map[string]interface{})
		assert.Equal(t, "doc-1", where["valueString"])

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"results": map[string]interface{}{}})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	assert.NoError(t, store.DeleteByDocument(context.Background(), "doc-1"))
}

func TestStore_Search(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		assert.Equal(t, "/v1/graphql", r.URL.Path)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"DocumentChunk": []interface{}{
						map[string]interface{}{
							"text":       "relevant chunk",
							"source":     "src",
							"documentId": "doc-1",
							"chunkIndex": float64(2),
							"_additional": map[string]interface{}{
								"certainty": 0.87,
							},
						},
						map[string]interface{}{
							"text":       "barely related",
							"source":     "src",
							"documentId": "doc-2",
							"chunkIndex": float64(0),
							"_additional": map[string]interface{}{
								"certainty": 0.12,
							},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	results, err := store.Search(context.Background(), []float32{0.1, 0.2},
		retrieval.SearchOptions{TopK: 5, Threshold: 0.3})
	require.NoError(t, err)

	// Certainty converts to cosine score (2c-1) before the threshold is
	// applied, so the low hit (0.12 -> -0.76) is filtered client-side.
	require.Len(t, results, 1)
	assert.Equal(t, "relevant chunk", results[0].Text)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, 2, results[0].ChunkIndex)
	assert.InDelta(t, 0.74, results[0].Score, 0.001)
}

func TestStore_Count(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{
					"DocumentChunk": []interface{}{
						map[string]interface{}{
							"meta": map[string]interface{}{"count": float64(42)},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), count)
}
