// Package index exposes the document indexing endpoints: synchronous batch
// indexing and an async variant that enqueues the work over NSQ.
package index

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"askdocs/internal/config"
	"askdocs/internal/indexing"
	"askdocs/internal/middleware"
	"askdocs/internal/worker"
)

// Indexer is the indexing pipeline the handler fronts.
type Indexer interface {
	IndexDocuments(ctx context.Context, docs []indexing.Document) indexing.BatchOutcome
}

// Publisher enqueues async indexing tasks. Satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type Handler struct {
	indexer   Indexer
	publisher Publisher
}

func NewHandler(indexer Indexer, publisher Publisher) *Handler {
	return &Handler{indexer: indexer, publisher: publisher}
}

type indexRequest struct {
	Documents []documentInput `json:"documents"`
}

type documentInput struct {
	Source   string            `json:"source"`
	Content  string            `json:"content"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Index handles POST /index. With ?async=1 the batch is published to NSQ and
// the caller gets 202; otherwise indexing runs inline and the full batch
// outcome comes back.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "documents is required", http.StatusBadRequest)
		return
	}
	for _, d := range req.Documents {
		if d.Source == "" {
			h.writeError(r.Context(), w, "VALIDATION_ERROR", "every document needs a source", http.StatusBadRequest)
			return
		}
	}

	docs := make([]indexing.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, indexing.Document{
			Source:   d.Source,
			Content:  d.Content,
			URL:      d.URL,
			Metadata: d.Metadata,
		})
	}

	if r.URL.Query().Get("async") == "1" {
		h.enqueue(w, r, docs)
		return
	}

	batch := h.indexer.IndexDocuments(r.Context(), docs)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": batch}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, docs []indexing.Document) {
	if h.publisher == nil {
		h.writeError(r.Context(), w, "NOT_AVAILABLE", "async indexing is not enabled", http.StatusServiceUnavailable)
		return
	}

	payload := worker.IndexTaskPayload{
		Documents:     docs,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.publisher.Publish(config.TopicIndexTask, body); err != nil {
		slog.ErrorContext(r.Context(), "failed to publish index task", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "failed to enqueue indexing task", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"status":    "queued",
			"documents": len(docs),
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
