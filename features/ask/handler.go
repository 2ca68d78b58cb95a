// Package ask exposes the question answering endpoint and session history.
package ask

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"askdocs/internal/middleware"
	"askdocs/internal/retrieval"
)

// Querier is the retrieval pipeline the handler fronts.
type Querier interface {
	Query(ctx context.Context, query string, opts retrieval.QueryOptions) (*retrieval.Response, error)
	History(ctx context.Context, sessionID string, limit int) ([]retrieval.Turn, error)
}

type Handler struct {
	querier Querier
}

func NewHandler(querier Querier) *Handler {
	return &Handler{querier: querier}
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
	Source    string `json:"source,omitempty"`
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	}

	resp, err := h.querier.Query(r.Context(), req.Query, retrieval.QueryOptions{
		SessionID: req.SessionID,
		TopK:      req.TopK,
		Source:    req.Source,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "query pipeline failed", "error", err)
		if errors.Is(err, retrieval.ErrSynthesisUnavailable) {
			h.writeError(r.Context(), w, "SYNTHESIS_UNAVAILABLE", "answer generation is temporarily unavailable", http.StatusBadGateway)
			return
		}
		h.writeError(r.Context(), w, "RETRIEVAL_UNAVAILABLE", "retrieval is temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "session_id is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	turns, err := h.querier.History(r.Context(), sessionID, limit)
	if err != nil {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []retrieval.Turn{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": turns,
		"meta": map[string]int{"count": len(turns)},
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
