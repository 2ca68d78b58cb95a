package document

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"askdocs/internal/indexing"
	"askdocs/internal/middleware"
)

type Repo interface {
	List(ctx context.Context) ([]indexing.Document, error)
	Get(ctx context.Context, id string) (*indexing.Document, error)
	Count(ctx context.Context) (int, error)
}

// Deleter removes a document everywhere: vector records first, then the
// registry entry.
type Deleter interface {
	DeleteDocument(ctx context.Context, documentID string) error
}

type ChunkCounter interface {
	Count(ctx context.Context) (uint64, error)
}

// StoreInfo describes the vector backend, reported on /stats.
type StoreInfo struct {
	Dimension  int
	Collection string
}

type Handler struct {
	repo    Repo
	deleter Deleter
	chunks  ChunkCounter
	info    StoreInfo
}

func NewHandler(repo Repo, deleter Deleter, chunks ChunkCounter, info StoreInfo) *Handler {
	return &Handler{repo: repo, deleter: deleter, chunks: chunks, info: info}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.repo.List(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	// Return [] instead of null for an empty list.
	if docs == nil {
		docs = []indexing.Document{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": docs,
		"meta": map[string]int{"count": len(docs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, indexing.ErrDocumentNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": doc}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// The registry entry must exist before touching the vector store, so a
	// bogus id reports 404 instead of silently succeeding.
	if _, err := h.repo.Get(r.Context(), id); err != nil {
		if errors.Is(err, indexing.ErrDocumentNotFound) {
			h.writeError(r.Context(), w, "NOT_FOUND", "Document not found", http.StatusNotFound)
			return
		}
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.deleter.DeleteDocument(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "document deletion failed", "document_id", id, "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": map[string]string{"document_id": id, "status": "deleted"},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type StatsResponse struct {
	Documents   int    `json:"documents"`
	TotalChunks uint64 `json:"total_chunks"`
	Dimension   int    `json:"dimension,omitempty"`
	Collection  string `json:"collection,omitempty"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docCount, err := h.repo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	chunkCount, err := h.chunks.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := StatsResponse{
		Documents:   docCount,
		TotalChunks: chunkCount,
		Dimension:   h.info.Dimension,
		Collection:  h.info.Collection,
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
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
