package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	BackendQdrant   = "qdrant"
	BackendWeaviate = "weaviate"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"askdocs"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"askdocs"`

	// Vector store
	VectorBackend    string `envconfig:"VECTOR_BACKEND" default:"qdrant"`
	QdrantHost       string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort       int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY"`
	QdrantUseTLS     bool   `envconfig:"QDRANT_USE_TLS" default:"false"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"documents"`
	WeaviateHost     string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme   string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Model provider
	ModelProvider  string  `envconfig:"MODEL_PROVIDER" default:"openai"`
	OpenAIAPIKey   string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string  `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey   string  `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel string  `envconfig:"EMBEDDING_MODEL"`
	ChatModel      string  `envconfig:"CHAT_MODEL"`
	Dimension      int     `envconfig:"VECTOR_DIMENSION" default:"1536"`
	Temperature    float64 `envconfig:"LLM_TEMPERATURE" default:"0.3"`
	MaxTokens      int     `envconfig:"LLM_MAX_TOKENS" default:"1024"`

	// Chunking
	ChunkSize        int `envconfig:"CHUNK_SIZE" default:"512"`
	ChunkOverlap     int `envconfig:"CHUNK_OVERLAP" default:"50"`
	MaxContentLength int `envconfig:"MAX_CONTENT_LENGTH" default:"100000"`

	// Embedding pipeline
	EmbedBatchSize    int     `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	EmbedConcurrency  int     `envconfig:"EMBED_CONCURRENCY" default:"4"`
	EmbedMaxRetries   int     `envconfig:"EMBED_MAX_RETRIES" default:"3"`
	EmbedRetryBaseMs  int     `envconfig:"EMBED_RETRY_BASE_MS" default:"500"`
	EmbedRateLimitRPS float64 `envconfig:"EMBED_RATE_LIMIT_RPS" default:"0"`

	// Retrieval
	TopK                int     `envconfig:"TOP_K" default:"5"`
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" default:"0.3"`
	MaxSourcesReturned  int     `envconfig:"MAX_SOURCES_RETURNED" default:"5"`
	ContextTokenBudget  int     `envconfig:"CONTEXT_TOKEN_BUDGET" default:"3000"`
	HistoryLimit        int     `envconfig:"HISTORY_LIMIT" default:"10"`

	// Async indexing
	NSQLookupd    string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost      string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP      string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQMaxMsgSize int64  `envconfig:"NSQ_MAX_MSG_SIZE" default:"10485760"` // 10MB

	EnableAPI         bool   `envconfig:"ENABLE_API" default:"true"`
	EnableIndexWorker bool   `envconfig:"ENABLE_INDEX_WORKER" default:"false"`
	MigrationPath     string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8080"`
	TraceLogPath string `envconfig:"TRACE_LOG_PATH" default:"data/logs/trace.log"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell instead; a missing .env is fine.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch c.VectorBackend {
	case BackendQdrant, BackendWeaviate:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalidValue, c.VectorBackend)
	}
	switch c.ModelProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("%w: MODEL_PROVIDER %q", ErrInvalidValue, c.ModelProvider)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidValue)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidValue)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: SIMILARITY_THRESHOLD must be in [0, 1]", ErrInvalidValue)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive", ErrInvalidValue)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: VECTOR_DIMENSION must be positive", ErrInvalidValue)
	}
	return nil
}
