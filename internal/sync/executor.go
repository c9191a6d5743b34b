// Package sync coordinates per-chat archive syncs: executors do the work,
// the orchestrator fans a multi-chat request across the schedulers and
// reports aggregate progress on the bus.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pcruz7/tgarc/internal/pipeline"
	"github.com/pcruz7/tgarc/internal/retry"
	"github.com/pcruz7/tgarc/internal/store"
	"github.com/pcruz7/tgarc/internal/tg"
	"go.uber.org/zap"
)

// Task kinds.
const (
	KindMetadata = "metadata"
	KindMessages = "messages"
)

// Options narrow a sync run. Zero values mean a full, unfiltered sync.
type Options struct {
	// Full forces a complete re-fetch, ignoring the incremental lower
	// bound derived from the archive.
	Full bool

	PageSize int
	Since    int64 // unix seconds
	Until    int64
	Types    []string
}

// ProgressFunc reports per-chat progress. total is -1 when the platform
// does not disclose how many messages the fetch will cover.
type ProgressFunc func(processed, total int)

// Executor runs one kind of sync work for a single chat. report may be nil.
type Executor interface {
	Execute(ctx context.Context, chatID int64, opts Options, report ProgressFunc) error
}

// ChatWriter is the storage surface the metadata executor writes to.
type ChatWriter interface {
	UpsertChat(c *store.Chat) error
}

// MetadataExecutor refreshes a chat's header record from the platform's
// dialog list.
type MetadataExecutor struct {
	client tg.RemoteClient
	chats  ChatWriter
	logger *zap.Logger
}

func NewMetadataExecutor(client tg.RemoteClient, chats ChatWriter, logger *zap.Logger) *MetadataExecutor {
	return &MetadataExecutor{client: client, chats: chats, logger: logger}
}

// Execute fetches the dialog list and records the header for chatID. An
// unknown chat fails the task; the platform is the source of truth here.
func (e *MetadataExecutor) Execute(ctx context.Context, chatID int64, _ Options, report ProgressFunc) error {
	res, err := retry.Do(ctx, e.logger, "get dialogs", func(ctx context.Context) ([]tg.Dialog, error) {
		return e.client.GetDialogs(ctx)
	}, retry.DefaultOptions())
	if err != nil {
		return fmt.Errorf("chat %d metadata: %w", chatID, err)
	}

	for _, d := range res.Data {
		if d.ChatID != chatID {
			continue
		}
		if report != nil {
			report(1, 1)
		}
		return e.chats.UpsertChat(&store.Chat{
			ChatID:        d.ChatID,
			Platform:      tg.Platform,
			Title:         d.Title,
			Kind:          d.Kind,
			Username:      d.Username,
			MemberCount:   d.MemberCount,
			LastMessageID: strconv.FormatInt(d.TopMessageID, 10),
		})
	}
	return fmt.Errorf("chat %d not present in dialog list", chatID)
}

// MessageReader is the storage surface the message executor reads its
// incremental lower bound from.
type MessageReader interface {
	LastMessageID(chatID string) (string, error)
}

// MessageExecutor archives a chat's history. It prefers the bulk-export
// strategy and falls back to live paging when the platform is holding the
// export behind an initialization delay.
type MessageExecutor struct {
	takeout   tg.Fetcher
	live      tg.Fetcher
	pipe      *pipeline.Pipeline
	messages  MessageReader
	logger    *zap.Logger
	batchSize int
}

func NewMessageExecutor(takeout, live tg.Fetcher, pipe *pipeline.Pipeline, messages MessageReader, logger *zap.Logger) *MessageExecutor {
	return &MessageExecutor{
		takeout:   takeout,
		live:      live,
		pipe:      pipe,
		messages:  messages,
		logger:    logger,
		batchSize: 100,
	}
}

// Execute streams the chat's history through the resolver pipeline in
// batches. Incremental runs only fetch messages newer than the newest one
// already archived.
func (e *MessageExecutor) Execute(ctx context.Context, chatID int64, opts Options, report ProgressFunc) error {
	fopts := tg.FetchOptions{
		PageSize: opts.PageSize,
		Since:    opts.Since,
		Until:    opts.Until,
		Types:    opts.Types,
	}
	if !opts.Full {
		minID, err := e.lowerBound(chatID)
		if err != nil {
			return err
		}
		fopts.MinID = minID
	}

	err := e.drain(ctx, e.takeout, chatID, fopts, report)
	if errors.Is(err, tg.ErrTakeoutUnavailable) {
		e.logger.Info("bulk export unavailable, falling back to live fetch",
			zap.Int64("chat_id", chatID))
		err = e.drain(ctx, e.live, chatID, fopts, report)
	}
	if err != nil {
		return fmt.Errorf("chat %d messages: %w", chatID, err)
	}
	return nil
}

func (e *MessageExecutor) lowerBound(chatID int64) (int64, error) {
	last, err := e.messages.LastMessageID(strconv.FormatInt(chatID, 10))
	if err != nil {
		return 0, fmt.Errorf("chat %d incremental bound: %w", chatID, err)
	}
	if last == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		// An unparseable archived id only disables incremental mode.
		e.logger.Warn("archived message id is not numeric, running full sync",
			zap.Int64("chat_id", chatID),
			zap.String("last_id", last))
		return 0, nil
	}
	return id, nil
}

func (e *MessageExecutor) drain(ctx context.Context, f tg.Fetcher, chatID int64, opts tg.FetchOptions, report ProgressFunc) error {
	stream := f.Fetch(ctx, chatID, opts)

	processed := 0
	batch := make([]*store.Message, 0, e.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.pipe.Process(ctx, batch); err != nil {
			return err
		}
		processed += len(batch)
		if report != nil {
			report(processed, -1)
		}
		batch = batch[:0]
		return nil
	}

	for m := range stream.Messages() {
		batch = append(batch, m)
		if len(batch) >= e.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	// Archive whatever arrived before a mid-stream failure; the upsert is
	// idempotent if a retry covers the same span again.
	if err := flush(); err != nil {
		return err
	}
	return stream.Err()
}
