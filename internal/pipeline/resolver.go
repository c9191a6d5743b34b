package pipeline

import (
	"context"

	"github.com/pcruz7/tgarc/internal/store"
)

// Resolver is a named post-processing stage that enriches a batch of
// canonical messages. Every resolver is exactly one of the two variants
// below; the pipeline dispatches on the variant.
type Resolver interface {
	Name() string
}

// BatchResolver computes a full replacement batch in one call.
type BatchResolver interface {
	Resolver
	Run(ctx context.Context, batch []*store.Message) ([]*store.Message, error)
}

// StreamResolver emits enriched messages incrementally, for stages where
// each item requires blocking I/O (media downloads). The returned channel
// must be closed when the batch is done.
type StreamResolver interface {
	Resolver
	Stream(ctx context.Context, batch []*store.Message) <-chan *store.Message
}
