package pipeline

import (
	"context"
	"sync"

	"github.com/pcruz7/tgarc/internal/store"
)

// SenderResolver fills in missing sender display names. The platform only
// attaches names to some history pages, so names learned from one batch are
// cached and applied to later batches from the same senders.
type SenderResolver struct {
	mu    sync.Mutex
	names map[string]string // FromID -> FromName
}

func NewSenderResolver() *SenderResolver {
	return &SenderResolver{names: make(map[string]string)}
}

func (s *SenderResolver) Name() string { return "sender" }

// Run learns names from the batch, then backfills messages that lack one.
func (s *SenderResolver) Run(ctx context.Context, batch []*store.Message) ([]*store.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range batch {
		if m.FromName != "" {
			s.names[m.FromID] = m.FromName
		}
	}
	for _, m := range batch {
		if m.FromName == "" {
			m.FromName = s.names[m.FromID]
		}
	}
	return batch, nil
}
