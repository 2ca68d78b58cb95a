package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"askdocs/features/ask"
	"askdocs/features/chat"
	"askdocs/features/document"
	"askdocs/features/index"
	wstore "askdocs/internal/adapter/weaviate"
	"askdocs/internal/config"
	"askdocs/internal/embedding"
	"askdocs/internal/indexing"
	"askdocs/internal/middleware"
	"askdocs/internal/retrieval"
	"askdocs/internal/trace"
)

// VectorStore is the full vector database surface the app wires: index-time
// writes, query-time search, and the chunk count behind /stats. Both the
// qdrant and weaviate adapters satisfy it.
type VectorStore interface {
	indexing.VectorStore
	retrieval.VectorSearcher
	Count(ctx context.Context) (uint64, error)
}

// ModelClient bundles one provider's embedding and synthesis surface. The
// openai and gemini adapters both satisfy it.
type ModelClient interface {
	embedding.Provider
	retrieval.Synthesizer
}

type App struct {
	Handler   http.Handler
	Indexer   *indexing.Service
	Retriever *retrieval.Service

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	model ModelClient,
	taskPub index.Publisher,
	logger *slog.Logger,
) (*App, error) {

	// Repositories
	docRepo := document.NewPostgresRepo(db)
	chatRepo := chat.NewPostgresRepo(db)

	// Trace recorder: every pipeline stage lands in the trace log and stdout.
	recorder, err := trace.NewFileRecorder(cfg.TraceLogPath)
	if err != nil {
		slog.Warn("failed to create trace log, falling back to stdout", "error", err)
		recorder = trace.NewRecorder(os.Stdout)
	}

	// Embedding client wraps the provider with batching, fan-out, retry and
	// optional rate limiting.
	embedClient := embedding.NewClient(model,
		embedding.WithBatchSize(cfg.EmbedBatchSize),
		embedding.WithConcurrency(cfg.EmbedConcurrency),
		embedding.WithMaxRetries(cfg.EmbedMaxRetries),
		embedding.WithBaseBackoff(time.Duration(cfg.EmbedRetryBaseMs)*time.Millisecond),
		embedding.WithRateLimit(cfg.EmbedRateLimitRPS),
	)

	// Services
	indexer := indexing.NewService(indexing.Config{
		ChunkSize:        cfg.ChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		MaxContentLength: cfg.MaxContentLength,
	}, embedClient, vecStore, docRepo, recorder)

	retriever := retrieval.NewService(retrieval.Config{
		TopK:               cfg.TopK,
		Threshold:          cfg.SimilarityThreshold,
		MaxSources:         cfg.MaxSourcesReturned,
		ContextTokenBudget: cfg.ContextTokenBudget,
		HistoryLimit:       cfg.HistoryLimit,
	}, embedClient, vecStore, model, chatRepo, recorder)

	// Handlers
	askHandler := ask.NewHandler(retriever)
	indexHandler := index.NewHandler(indexer, taskPub)
	collection := cfg.QdrantCollection
	if cfg.VectorBackend == config.BackendWeaviate {
		collection = wstore.ClassName
	}
	documentHandler := document.NewHandler(docRepo, indexer, vecStore, document.StoreInfo{
		Dimension:  cfg.Dimension,
		Collection: collection,
	})

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /index", middleware.CorrelationID(enableCORS(indexHandler.Index)))

	mux.Handle("POST /query", middleware.CorrelationID(enableCORS(askHandler.Query)))
	mux.Handle("GET /history/{session_id}", middleware.CorrelationID(enableCORS(askHandler.History)))

	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(documentHandler.Stats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:   mux,
		Indexer:   indexer,
		Retriever: retriever,
		port:      cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
