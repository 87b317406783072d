package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hrplatform/docingest/internal/domain"
)

const (
	// DefaultEmbeddingModel is the model used for chunk embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultChatModel answers questions over retrieved chunks
	DefaultChatModel = "google/gemini-2.0-flash-001"
	// MaxEmbeddingInputTokens is the input limit of the embedding models
	MaxEmbeddingInputTokens = 8191
	// DefaultBatchSize caps the number of inputs per embeddings request
	DefaultBatchSize = 64
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = fmt.Errorf("embedding has wrong dimensions, expected %d", domain.EmbeddingDimensions)
	// ErrCountMismatch is returned when the API returns a different number of vectors than inputs
	ErrCountMismatch = errors.New("embedding response count does not match input count")
	// ErrNoChoices is returned when a chat completion has no choices
	ErrNoChoices = errors.New("chat completion returned no choices")
)

const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// Message is one turn of a chat completion request
type Message struct {
	Role    string
	Content string
}

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatAPI defines the interface for chat completions against a specific model
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, model string, messages []Message, temperature float32) (string, error)
}

// Client wraps an OpenAI-compatible API (OpenAI, OpenRouter)
type Client struct {
	api           EmbeddingAPI
	chat          ChatAPI
	tokens        *TokenCounter
	dimensions    int
	batchSize     int
	embedModel    string
	chatModel     string
	fallbackModel string
	disabled      bool
	logger        *slog.Logger
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(apiKey, baseURL string, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the embeddings endpoint for a batch of inputs
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      a.model,
		Dimensions: a.dimensions,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// CreateChatCompletion sends messages to model and returns the first choice
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, model string, messages []Message, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey            string
	BaseURL           string
	EmbeddingModel    string
	ChatModel         string
	ChatFallbackModel string
	KillSwitch        bool
	BatchSize         int
	Logger            *slog.Logger
}

// NewClient creates a new client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	adapter := NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, openai.EmbeddingModel(cfg.EmbeddingModel), domain.EmbeddingDimensions)
	return newClient(adapter, adapter, cfg)
}

func newClient(api EmbeddingAPI, chat ChatAPI, cfg Config) *Client {
	embedModel := cfg.EmbeddingModel
	if embedModel == "" {
		embedModel = string(DefaultEmbeddingModel)
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		api:           api,
		chat:          chat,
		tokens:        NewTokenCounter(),
		dimensions:    domain.EmbeddingDimensions,
		batchSize:     batch,
		embedModel:    embedModel,
		chatModel:     chatModel,
		fallbackModel: cfg.ChatFallbackModel,
		disabled:      cfg.KillSwitch,
		logger:        logger,
	}
}

// EmbeddingModel returns the model name, used as the embedding cache namespace.
func (c *Client) EmbeddingModel() string {
	return c.embedModel
}

// Disabled reports whether the AI kill switch is on.
func (c *Client) Disabled() bool {
	return c.disabled
}

// GenerateEmbedding generates an embedding for a single text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	vecs, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// CreateEmbeddings embeds texts in batches. Every returned vector has exactly
// domain.EmbeddingDimensions entries.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if c.disabled {
		return nil, domain.ErrAIDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			if t == "" {
				return nil, ErrEmptyText
			}
			batch = append(batch, c.tokens.Truncate(t, MaxEmbeddingInputTokens))
		}

		vecs, err := c.api.CreateEmbeddings(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, ErrCountMismatch
		}
		for _, v := range vecs {
			if len(v) != c.dimensions {
				return nil, ErrWrongDimensions
			}
		}
		out = append(out, vecs...)
	}

	return out, nil
}

// Complete runs a chat completion, retrying once with the fallback model.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float32) (string, error) {
	if c.disabled {
		return "", domain.ErrAIDisabled
	}

	answer, err := c.chat.CreateChatCompletion(ctx, c.chatModel, messages, temperature)
	if err == nil {
		return answer, nil
	}
	if c.fallbackModel == "" || ctx.Err() != nil {
		return "", fmt.Errorf("chat completion with %s: %w", c.chatModel, err)
	}

	c.logger.Warn("chat model failed, trying fallback",
		"model", c.chatModel, "fallback_model", c.fallbackModel, "error", err)

	answer, fbErr := c.chat.CreateChatCompletion(ctx, c.fallbackModel, messages, temperature)
	if fbErr != nil {
		return "", fmt.Errorf("chat completion with %s: %w", c.fallbackModel, errors.Join(err, fbErr))
	}
	return answer, nil
}
