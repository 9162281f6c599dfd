// Package embedding is the boundary to the external embedding function. The
// core never computes embeddings itself; it asks an Embedder for a
// fixed-length vector and hands that to the index.
package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// GeminiEmbedder calls the Google embedding API. The client is a process-wide
// singleton; configuration is read-only after construction.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiEmbedder builds the embedder. The model's output dimension must
// match the vector index.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model, dim: dimension}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedding response empty for model %s", e.model)
	}
	vec := resp.Embeddings[0].Values
	if e.dim > 0 && len(vec) != e.dim {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(vec), e.dim)
	}
	return vec, nil
}

func (e *GeminiEmbedder) Dimension() int {
	return e.dim
}
