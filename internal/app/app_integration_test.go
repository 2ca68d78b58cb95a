package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wstore "askdocs/internal/adapter/weaviate"
	"askdocs/internal/app"
	"askdocs/internal/config"
	"askdocs/internal/testutils"
)

type e2eModel struct{}

func (e2eModel) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (e2eModel) Dimension() int    { return 3 }
func (e2eModel) ModelName() string { return "e2e-model" }

func (e2eModel) Synthesize(context.Context, string, string) (string, error) {
	return "The document says hello.", nil
}

func TestApp_EndToEnd_IndexAndQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E integration test")
	}

	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	vecStore := wstore.NewStore(s.Weaviate)
	require.NoError(t, vecStore.EnsureSchema(context.Background()))

	cfg := &config.Config{
		ChunkSize:          128,
		ChunkOverlap:       16,
		EmbedBatchSize:     16,
		EmbedConcurrency:   2,
		EmbedMaxRetries:    1,
		TopK:               5,
		MaxSourcesReturned: 5,
		HistoryLimit:       10,
		ServerPort:         8080,
		TraceLogPath:       t.TempDir() + "/trace.log",
	}

	application, err := app.New(cfg, s.DB, vecStore, e2eModel{}, s.NSQ, nil)
	require.NoError(t, err)

	// 1. Index a document synchronously.
	body, _ := json.Marshal(map[string]interface{}{
		"documents": []map[string]string{
			{"source": "greeting.txt", "content": "Hello from the end to end test document."},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/index", bytes.NewReader(body))
	w := httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var indexResp struct {
		Data struct {
			Successful  int `json:"successful"`
			TotalChunks int `json:"total_chunks"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &indexResp))
	assert.Equal(t, 1, indexResp.Data.Successful)
	assert.GreaterOrEqual(t, indexResp.Data.TotalChunks, 1)

	// 2. The registry lists it.
	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "greeting.txt")

	// 3. Query comes back grounded in the stored chunk.
	body, _ = json.Marshal(map[string]string{"query": "what does the document say"})
	req = httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	w = httptest.NewRecorder()
	application.Handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var queryResp struct {
		Data struct {
			Answer             string `json:"answer"`
			Status             string `json:"status"`
			DocumentsRetrieved int    `json:"documents_retrieved"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &queryResp))
	assert.Equal(t, "success", queryResp.Data.Status)
	assert.Equal(t, "The document says hello.", queryResp.Data.Answer)
	assert.GreaterOrEqual(t, queryResp.Data.DocumentsRetrieved, 1)
}
