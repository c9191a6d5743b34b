package tg

import (
	"context"

	"github.com/pcruz7/tgarc/internal/retry"
	"github.com/pcruz7/tgarc/internal/store"
	"go.uber.org/zap"
)

// LiveFetcher pages through history with plain getHistory calls.
type LiveFetcher struct {
	client RemoteClient
	logger *zap.Logger
}

// NewLiveFetcher creates the live-strategy fetcher.
func NewLiveFetcher(client RemoteClient, logger *zap.Logger) *LiveFetcher {
	return &LiveFetcher{client: client, logger: logger}
}

// Fetch starts a lazy paginated fetch for the chat.
func (f *LiveFetcher) Fetch(ctx context.Context, chatID int64, opts FetchOptions) *MessageStream {
	s := newStream(pageBuf(opts))
	go func() {
		s.finish(paginate(ctx, f.client, f.logger, chatID, opts, "", s.ch))
	}()
	return s
}

func pageBuf(opts FetchOptions) int {
	if opts.PageSize > 0 {
		return opts.PageSize
	}
	return 64
}

// paginate drives the shared cursor loop for both strategies, emitting
// converted messages into out. takeoutID scopes requests to a bulk-export
// session when non-empty.
func paginate(ctx context.Context, client RemoteClient, logger *zap.Logger, chatID int64, opts FetchOptions, takeoutID string, out chan<- *store.Message) error {
	limit := opts.PageSize
	if limit <= 0 {
		limit = 100
	}

	offset := opts.MaxID // 0 means newest

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := HistoryRequest{
			ChatID:    chatID,
			OffsetID:  offset,
			Limit:     limit,
			MinID:     opts.MinID,
			MaxID:     opts.MaxID,
			TakeoutID: takeoutID,
		}
		res, err := retry.Do(ctx, logger, "getHistory",
			func(ctx context.Context) (*HistoryPage, error) {
				return client.GetHistory(ctx, req)
			}, retry.DefaultOptions())
		if err != nil {
			return err
		}
		page := res.Data

		for i := range page.Messages {
			raw := &page.Messages[i]
			// The cursor advances even for filtered-out and tombstone
			// messages so pagination never stalls.
			offset = raw.ID

			if opts.MinID > 0 && raw.ID <= opts.MinID {
				return nil
			}
			if !passesFilter(raw, opts) {
				continue
			}
			msg := Convert(raw)
			if msg == nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(page.Messages) < limit {
			return nil
		}
	}
}
