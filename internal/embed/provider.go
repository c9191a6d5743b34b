// Package embed provides the embedding-provider capability consumed by the
// embedding resolver.
package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider generates text embeddings in batch. The pipeline treats it as an
// opaque transform; Dimension selects which vector column is populated.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OpenAI is the openai-backed Provider.
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAI creates an OpenAI provider. baseURL is optional and supports
// API-compatible local servers.
func NewOpenAI(apiKey, baseURL, model string, dim int) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model, dim: dim}
}

// Dimension returns the configured embedding dimension.
func (o *OpenAI) Dimension() int { return o.dim }

// EmbedBatch embeds all texts in one request, preserving order.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: openai.Int(int64(o.dim)),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}
