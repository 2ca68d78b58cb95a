// Package gemini adapts the Google Gemini API as the embedding provider and
// answer synthesizer.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"askdocs/internal/embedding"
)

const (
	DefaultEmbeddingModel = "gemini-embedding-001"
	DefaultChatModel      = "gemini-2.0-flash"
)

type Client struct {
	client         *genai.Client
	embeddingModel string
	chatModel      string
	dimension      int
	temperature    float32
	maxTokens      int
}

type Config struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Dimension      int
	Temperature    float32
	MaxTokens      int
}

func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key not set")
	}

	client, err := genai.NewClient(ctx, append(opts, option.WithAPIKey(cfg.APIKey))...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		client:         client,
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

func (c *Client) Close() error { return c.client.Close() }

func (c *Client) Dimension() int    { return c.dimension }
func (c *Client) ModelName() string { return c.embeddingModel }

// EmbedBatch embeds one batch of texts in a single API round trip.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding batch", "model", c.embeddingModel, "size", len(texts))

	em := c.client.EmbeddingModel(c.embeddingModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, classify(err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			embedding.ErrNotRetryable, len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Synthesize generates the grounded answer from the system and user prompts.
func (c *Client) Synthesize(ctx context.Context, system, prompt string) (string, error) {
	model := c.client.GenerativeModel(c.chatModel)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	model.SetTemperature(c.temperature)
	if c.maxTokens > 0 {
		model.SetMaxOutputTokens(int32(c.maxTokens))
	}

	res, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.ErrorContext(ctx, "content generation failed", "model", c.chatModel, "error", err)
		return "", err
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", errors.New("empty generation response")
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 408, 429:
			return err
		}
		if apiErr.Code >= 400 && apiErr.Code < 500 {
			return fmt.Errorf("%w: %v", embedding.ErrNotRetryable, err)
		}
	}
	return err
}
