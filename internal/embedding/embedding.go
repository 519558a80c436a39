// Package embedding turns text into L2-normalized vectors for retrieval.
//
// Two implementations are provided: an OpenAI-backed embedder used in
// production and a deterministic feature-hashing embedder that needs no
// network and backs local development and tests.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/soldasur/advisor/internal/vector"
)

// Embedder converts text into an L2-normalized vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Opts holds configuration for the OpenAI embedder.
type Opts struct {
	APIKey string
	Model  openai.EmbeddingModel
}

// Option configures the OpenAI embedder.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the embedding model.
func WithModel(model openai.EmbeddingModel) Option {
	return func(o *Opts) { o.Model = model }
}

// OpenAIEmbedder embeds text with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
func NewOpenAIEmbedder(opts ...Option) (*OpenAIEmbedder, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.EmbeddingModelTextEmbedding3Small
	}
	slog.Debug("NewOpenAIEmbedder created", "model", cfg.Model)
	return &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// Embed requests an embedding for the text and normalizes it.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		slog.Error("OpenAIEmbedder.Embed request failed", "error", err)
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	emb := resp.Data[0].Embedding
	out := make([]float64, len(emb))
	copy(out, emb)
	return vector.Normalize(out), nil
}
