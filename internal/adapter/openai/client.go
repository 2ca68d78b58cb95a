// Package openai adapts the OpenAI API (or any compatible endpoint such as
// OpenRouter) as the embedding provider and answer synthesizer.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"askdocs/internal/embedding"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "gpt-4o-mini"
)

// Client implements embedding.Provider and retrieval.Synthesizer against one
// OpenAI-compatible endpoint. Retry and batching policy live in the embedding
// client; this adapter only classifies failures.
type Client struct {
	client         openai.Client
	embeddingModel string
	chatModel      string
	dimension      int
	temperature    float64
	maxTokens      int
}

type Config struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Dimension      int
	Temperature    float64
	MaxTokens      int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not set")
	}

	// The embedding client owns the retry policy, so SDK retries stay off.
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		client:         openai.NewClient(opts...),
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		dimension:      cfg.Dimension,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	return c, nil
}

func (c *Client) Dimension() int    { return c.dimension }
func (c *Client) ModelName() string { return c.embeddingModel }

// EmbedBatch embeds one batch of texts. Client errors (bad key, unknown
// model, oversized input) are wrapped in embedding.ErrNotRetryable; everything
// else is left transient for the caller to retry.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if c.dimension > 0 {
		params.Dimensions = openai.Int(int64(c.dimension))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if int(data.Index) >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", embedding.ErrNotRetryable, data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		vectors[data.Index] = vector
	}
	return vectors, nil
}

// Synthesize generates the grounded answer from the system and user prompts.
func (c *Client) Synthesize(ctx context.Context, system, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.ErrorContext(ctx, "chat completion failed", "model", c.chatModel, "error", err)
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return completion.Choices[0].Message.Content, nil
}

// classify splits API failures into retryable and not. 4xx other than 408 and
// 429 will not resolve on retry.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 408, 429:
			return err
		}
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return fmt.Errorf("%w: %v", embedding.ErrNotRetryable, err)
		}
	}
	return err
}
