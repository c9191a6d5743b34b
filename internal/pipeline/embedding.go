package pipeline

import (
	"context"
	"fmt"

	"github.com/pcruz7/tgarc/internal/embed"
	"github.com/pcruz7/tgarc/internal/store"
)

// EmbedResolver generates content embeddings in one provider call per
// batch. Messages without text content are passed through untouched.
type EmbedResolver struct {
	provider embed.Provider
}

func NewEmbedResolver(provider embed.Provider) *EmbedResolver {
	return &EmbedResolver{provider: provider}
}

func (e *EmbedResolver) Name() string { return "embed" }

// Run embeds the batch. A provider failure fails the whole stage; the
// pipeline records nothing for it and moves on.
func (e *EmbedResolver) Run(ctx context.Context, batch []*store.Message) ([]*store.Message, error) {
	var texts []string
	var idx []int
	for i, m := range batch {
		if m.Content == "" {
			continue
		}
		texts = append(texts, m.Content)
		idx = append(idx, i)
	}
	if len(texts) == 0 {
		return batch, nil
	}

	vectors, err := e.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(texts))
	}

	dim := e.provider.Dimension()
	for j, i := range idx {
		batch[i].Vector = vectors[j]
		batch[i].VectorDim = dim
	}
	return batch, nil
}
