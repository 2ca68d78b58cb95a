package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSynthesisUnavailable wraps model failures during answer generation. The
// retrieval itself succeeded; only the final generation step failed.
var ErrSynthesisUnavailable = errors.New("answer synthesis unavailable")

// RetrievedResult is one chunk returned by vector search, scored and carrying
// enough payload to build a citation.
type RetrievedResult struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	URL        string  `json:"url,omitempty"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// SearchOptions narrows a vector search. Threshold filters before the top-k
// cut so low-relevance chunks never crowd out better ones.
type SearchOptions struct {
	TopK      int
	Threshold float32
	Source    string
}

// Citation is the trimmed per-source entry attached to an answer.
type Citation struct {
	Source     string  `json:"source"`
	URL        string  `json:"url,omitempty"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

type ResponseStatus string

const (
	StatusSuccess   ResponseStatus = "success"
	StatusNoResults ResponseStatus = "no_results"
)

// Response is the full answer envelope for one query.
type Response struct {
	Answer             string         `json:"answer"`
	Sources            []Citation     `json:"sources"`
	Query              string         `json:"query"`
	DocumentsRetrieved int            `json:"documents_retrieved"`
	LatencyMs          int64          `json:"latency_ms"`
	Status             ResponseStatus `json:"status"`
}

// Turn is one stored question/answer exchange in a session.
type Turn struct {
	SessionID string     `json:"session_id"`
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Sources   []Citation `json:"sources,omitempty"`
	Status    string     `json:"status"`
	LatencyMs int64      `json:"latency_ms"`
	CreatedAt time.Time  `json:"created_at"`
}

// QueryEmbedder turns the query text into a vector with the same model the
// indexed chunks were embedded with.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// VectorSearcher is the vector database port at query time.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]RetrievedResult, error)
}

// Synthesizer generates the grounded answer from the assembled prompt.
type Synthesizer interface {
	Synthesize(ctx context.Context, system, prompt string) (string, error)
}

// HistoryStore persists session turns. Append failures are logged, never
// surfaced; history is best effort.
type HistoryStore interface {
	Append(ctx context.Context, turn Turn) error
	History(ctx context.Context, sessionID string, limit int) ([]Turn, error)
}

// Recorder receives per-stage timing for observability.
type Recorder interface {
	RecordStage(runID, stage string, startedAt, endedAt time.Time, status string, attrs map[string]any)
}

// Config carries the retrieval defaults. QueryOptions can override top-k per
// request; the threshold is fixed at startup.
type Config struct {
	TopK               int
	Threshold          float32
	MaxSources         int
	ContextTokenBudget int
	HistoryLimit       int
}

// QueryOptions are per-request overrides.
type QueryOptions struct {
	SessionID string
	TopK      int
	Source    string
}

// Service runs the retrieval pipeline: embed the query, search, assemble
// context, synthesize, cite.
type Service struct {
	cfg     Config
	embed   QueryEmbedder
	store   VectorSearcher
	synth   Synthesizer
	history HistoryStore
	trace   Recorder
}

func NewService(cfg Config, embed QueryEmbedder, store VectorSearcher, synth Synthesizer, history HistoryStore, trace Recorder) *Service {
	return &Service{cfg: cfg, embed: embed, store: store, synth: synth, history: history, trace: trace}
}

// SortResults orders results by score descending, tie-breaking on chunk index
// then document id so identical inputs always produce identical rankings.
func SortResults(results []RetrievedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].DocumentID < results[j].DocumentID
	})
}

// Query runs the full pipeline for one question. An empty result set is not an
// error: the caller gets DefaultNoAnswer with status no_results and the model
// is never invoked. Embed and search failures return errors; so do synthesis
// failures, wrapped in ErrSynthesisUnavailable so handlers can map them to 502.
func (s *Service) Query(ctx context.Context, query string, opts QueryOptions) (*Response, error) {
	start := time.Now()
	runID := uuid.NewString()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("empty query")
	}

	topK := s.cfg.TopK
	if opts.TopK > 0 {
		topK = opts.TopK
	}

	embedStart := time.Now()
	vector, err := s.embed.EmbedQuery(ctx, query)
	s.record(runID, "embed_query", embedStart, err, nil)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	searchStart := time.Now()
	results, err := s.store.Search(ctx, vector, SearchOptions{
		TopK:      topK,
		Threshold: s.cfg.Threshold,
		Source:    opts.Source,
	})
	s.record(runID, "search", searchStart, err, map[string]any{"results": len(results)})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	SortResults(results)

	if len(results) == 0 {
		slog.InfoContext(ctx, "no relevant documents for query", "query", snippet(query, 80))
		resp := &Response{
			Answer:    DefaultNoAnswer,
			Sources:   []Citation{},
			Query:     query,
			LatencyMs: time.Since(start).Milliseconds(),
			Status:    StatusNoResults,
		}
		s.appendHistory(ctx, opts.SessionID, resp)
		return resp, nil
	}

	promptContext, kept := BuildContext(results, s.cfg.ContextTokenBudget)

	synthStart := time.Now()
	answer, err := s.synth.Synthesize(ctx, SystemPrompt, BuildPrompt(query, promptContext))
	s.record(runID, "synthesize", synthStart, err, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisUnavailable, err)
	}

	// Citations cover only the chunks that made it into the context; a chunk
	// the budget dropped was never shown to the model.
	maxSources := s.cfg.MaxSources
	if maxSources <= 0 || maxSources > kept {
		maxSources = kept
	}
	sources := make([]Citation, 0, maxSources)
	for _, r := range results[:maxSources] {
		sources = append(sources, Citation{
			Source:     r.Source,
			URL:        r.URL,
			Text:       snippet(r.Text, 200),
			Score:      r.Score,
			ChunkIndex: r.ChunkIndex,
		})
	}

	resp := &Response{
		Answer:             answer,
		Sources:            sources,
		Query:              query,
		DocumentsRetrieved: len(results),
		LatencyMs:          time.Since(start).Milliseconds(),
		Status:             StatusSuccess,
	}
	s.appendHistory(ctx, opts.SessionID, resp)

	slog.InfoContext(ctx, "query answered",
		"documents_retrieved", resp.DocumentsRetrieved, "latency_ms", resp.LatencyMs)
	return resp, nil
}

// History returns the most recent turns for a session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if s.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.history.History(ctx, sessionID, limit)
}

func (s *Service) appendHistory(ctx context.Context, sessionID string, resp *Response) {
	if s.history == nil || sessionID == "" {
		return
	}
	err := s.history.Append(ctx, Turn{
		SessionID: sessionID,
		Query:     resp.Query,
		Answer:    resp.Answer,
		Sources:   resp.Sources,
		Status:    string(resp.Status),
		LatencyMs: resp.LatencyMs,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "chat history append failed", "session_id", sessionID, "error", err)
	}
}

func (s *Service) record(runID, stage string, startedAt time.Time, err error, attrs map[string]any) {
	if s.trace == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrs["error"] = err.Error()
	}
	s.trace.RecordStage(runID, stage, startedAt, time.Now(), status, attrs)
}
