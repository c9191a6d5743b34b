package pipeline

import (
	"context"

	"github.com/pcruz7/tgarc/internal/retry"
	"github.com/pcruz7/tgarc/internal/store"
	"github.com/pcruz7/tgarc/internal/tg"
	"go.uber.org/zap"
)

// Downloader is the transport capability the media resolver needs.
type Downloader interface {
	DownloadMedia(ctx context.Context, ref *tg.RawMedia, destDir string) (string, int64, error)
}

// MediaResolver downloads pending media references to local disk and fills
// in their path and size. It streams: each message is emitted as soon as
// its media is settled, since downloads are the slowest stage by far.
type MediaResolver struct {
	downloader Downloader
	destDir    string
	skip       bool
	logger     *zap.Logger
}

func NewMediaResolver(downloader Downloader, destDir string, skip bool, logger *zap.Logger) *MediaResolver {
	return &MediaResolver{downloader: downloader, destDir: destDir, skip: skip, logger: logger}
}

func (r *MediaResolver) Name() string { return "media" }

// Stream downloads media for each message in order. A failed download
// leaves that ref pending; the message is still emitted.
func (r *MediaResolver) Stream(ctx context.Context, batch []*store.Message) <-chan *store.Message {
	out := make(chan *store.Message, len(batch))
	go func() {
		defer close(out)
		for _, m := range batch {
			if ctx.Err() != nil {
				return
			}
			if !r.skip {
				r.resolve(ctx, m)
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (r *MediaResolver) resolve(ctx context.Context, m *store.Message) {
	for i := range m.Media {
		ref := &m.Media[i]
		if ref.Path != "" || ref.Ref == "" {
			continue
		}
		raw := &tg.RawMedia{Kind: ref.Type, Ref: ref.Ref, MimeType: ref.MimeType}

		type download struct {
			path string
			size int64
		}
		res, err := retry.Do(ctx, r.logger, "download media", func(ctx context.Context) (download, error) {
			path, size, err := r.downloader.DownloadMedia(ctx, raw, r.destDir)
			return download{path: path, size: size}, err
		}, retry.Options{MaxRetries: 2, ThrowOnExhaustion: true})
		if err != nil {
			r.logger.Warn("media download failed, leaving ref pending",
				zap.String("message", m.ID),
				zap.String("type", ref.Type),
				zap.Error(err))
			continue
		}
		ref.Path = res.Data.path
		ref.Size = res.Data.size
	}
}
