// Package genai provides text generation via the OpenAI API.
//
// The orchestrator uses it to phrase retrieval-backed answers. Generation
// failures are never fatal; callers fall back to a deterministic rendering
// of the retrieved products.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 20 * time.Second

// Generator produces an answer from a system prompt and a user prompt.
// Implemented by Client; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey  string
	Model   openai.ChatModel
	Timeout time.Duration
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completions API.
type Client struct {
	client  openai.Client
	model   openai.ChatModel
	timeout time.Duration
}

// NewClient creates a GenAI client.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	slog.Debug("genai.NewClient created", "model", cfg.Model, "timeout", cfg.Timeout)
	return &Client{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Generate produces a completion for the given prompts. The call is bounded
// by the configured timeout on top of any deadline already in ctx.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Model: c.model,
	})
	if err != nil {
		slog.Error("genai.Generate request failed", "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.Generate returned no choices")
		return "", fmt.Errorf("chat completion returned no choices")
	}
	slog.Debug("genai.Generate succeeded", "chars", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}
