package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	gclient "askdocs/internal/adapter/gemini"
	oclient "askdocs/internal/adapter/openai"
	qstore "askdocs/internal/adapter/qdrant"
	wstore "askdocs/internal/adapter/weaviate"
	"askdocs/internal/config"
)

type Dependencies struct {
	DB          *sql.DB
	VectorStore VectorStore
	Model       ModelClient
	NSQProducer *nsq.Producer
}

// Bootstrap connects every external dependency: Postgres (with migrations),
// the configured vector backend, the configured model provider, and NSQ.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	// Retry loop
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	// Vector backend
	vecStore, err := openVectorStore(ctx, cfg, retryDelay)
	if err != nil {
		return nil, err
	}

	// Model provider
	model, err := openModelClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	// Topic pre-creation so consumers querying lookupd don't 404 before the
	// first publish.
	createTopics(cfg.NSQDHTTP)

	return &Dependencies{
		DB:          db,
		VectorStore: vecStore,
		Model:       model,
		NSQProducer: producer,
	}, nil
}

func openVectorStore(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (VectorStore, error) {
	switch cfg.VectorBackend {
	case config.BackendQdrant:
		store, err := qstore.NewStore(qstore.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant client error: %w", err)
		}
		ensure := func(ctx context.Context) error {
			return store.EnsureCollection(ctx, cfg.Dimension)
		}
		if err := EnsureSchemaWithRetry(ctx, ensure, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return nil, fmt.Errorf("qdrant collection error: %w", err)
		}
		return store, nil

	case config.BackendWeaviate:
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(wClient)
		if err := EnsureSchemaWithRetry(ctx, store.EnsureSchema, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("%w: VECTOR_BACKEND %q", config.ErrInvalidValue, cfg.VectorBackend)
	}
}

func openModelClient(ctx context.Context, cfg *config.Config) (ModelClient, error) {
	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		client, err := oclient.NewClient(oclient.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
			ChatModel:      cfg.ChatModel,
			Dimension:      cfg.Dimension,
			Temperature:    cfg.Temperature,
			MaxTokens:      cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("openai client error: %w", err)
		}
		return client, nil

	case config.ProviderGemini:
		client, err := gclient.NewClient(ctx, gclient.Config{
			APIKey:         cfg.GeminiAPIKey,
			EmbeddingModel: cfg.EmbeddingModel,
			ChatModel:      cfg.ChatModel,
			Dimension:      cfg.Dimension,
			Temperature:    float32(cfg.Temperature),
			MaxTokens:      cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client error: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("%w: MODEL_PROVIDER %q", config.ErrInvalidValue, cfg.ModelProvider)
	}
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIndexTask)
	}()
}

// EnsureSchemaWithRetry retries the vector store readiness check until it
// succeeds or attempts run out. The backend usually just needs a few seconds
// to come up alongside the API container.
func EnsureSchemaWithRetry(ctx context.Context, ensure func(context.Context) error, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = ensure(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
