package tg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InitTakeoutRequest is the raw request that opens a bulk-export session.
type InitTakeoutRequest struct {
	MessageChats    bool
	MessageChannels bool
	Files           bool
	FileMaxSize     int64
}

// InitTakeoutResponse carries the opaque session id.
type InitTakeoutResponse struct {
	ID string
}

// FinishTakeoutRequest closes a bulk-export session.
type FinishTakeoutRequest struct {
	ID      string
	Success bool
}

// TakeoutSession is the account-global exclusive bulk-export session.
type TakeoutSession struct {
	ID     string
	Active bool
}

// TakeoutManager owns the single account-level takeout session. Init is
// idempotent; Finish releases the session exactly once. Exactly one session
// may exist per account at a time.
type TakeoutManager struct {
	mu      sync.Mutex
	client  RemoteClient
	logger  *zap.Logger
	session *TakeoutSession
}

// NewTakeoutManager creates a takeout manager over the client.
func NewTakeoutManager(client RemoteClient, logger *zap.Logger) *TakeoutManager {
	return &TakeoutManager{client: client, logger: logger}
}

// Init opens the bulk-export session, reusing an already-active one. When
// the platform enforces an initialization delay it returns
// ErrTakeoutUnavailable (wrapping the coded cause) and the caller must fall
// back to the live strategy.
func (t *TakeoutManager) Init(ctx context.Context) (*TakeoutSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil && t.session.Active {
		return t.session, nil
	}

	res, err := t.client.Invoke(ctx, InitTakeoutRequest{
		MessageChats:    true,
		MessageChannels: true,
		Files:           true,
		FileMaxSize:     512 << 20,
	})
	if err != nil {
		if IsCode(err, "TAKEOUT_INIT_DELAY") {
			if t.logger != nil {
				t.logger.Info("takeout not yet available", zap.Error(err))
			}
			return nil, fmt.Errorf("%w: %w", ErrTakeoutUnavailable, err)
		}
		return nil, fmt.Errorf("init takeout: %w", err)
	}

	init, ok := res.(InitTakeoutResponse)
	if !ok {
		return nil, fmt.Errorf("init takeout: unexpected response %T", res)
	}

	t.session = &TakeoutSession{ID: init.ID, Active: true}
	if t.logger != nil {
		t.logger.Info("takeout session opened", zap.String("takeout_id", init.ID))
	}
	return t.session, nil
}

// Finish closes the active session, reporting success or failure to the
// platform. No-op when no session is active, which makes the deferred call
// in the fetcher safe on every exit path.
func (t *TakeoutManager) Finish(ctx context.Context, success bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil || !t.session.Active {
		return nil
	}
	id := t.session.ID
	t.session.Active = false
	t.session = nil

	_, err := t.client.Invoke(ctx, FinishTakeoutRequest{ID: id, Success: success})
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("finish takeout failed", zap.String("takeout_id", id), zap.Error(err))
		}
		return fmt.Errorf("finish takeout: %w", err)
	}
	if t.logger != nil {
		t.logger.Info("takeout session closed", zap.String("takeout_id", id), zap.Bool("success", success))
	}
	return nil
}

// Active reports whether a session is currently held.
func (t *TakeoutManager) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session != nil && t.session.Active
}

// TakeoutFetcher pages through history inside a bulk-export session. Same
// cursor and filter semantics as the live strategy, higher throughput.
type TakeoutFetcher struct {
	client   RemoteClient
	takeouts *TakeoutManager
	logger   *zap.Logger
}

// NewTakeoutFetcher creates the bulk-export-strategy fetcher.
func NewTakeoutFetcher(client RemoteClient, takeouts *TakeoutManager, logger *zap.Logger) *TakeoutFetcher {
	return &TakeoutFetcher{client: client, takeouts: takeouts, logger: logger}
}

// Fetch opens (or reuses) the takeout session, pages scoped history through
// it, and always finishes the session, including on consumer-driven
// cancellation, so the account-level export lock is never left held. An
// initialization delay surfaces as ErrTakeoutUnavailable via the stream
// error before any message is emitted.
func (f *TakeoutFetcher) Fetch(ctx context.Context, chatID int64, opts FetchOptions) *MessageStream {
	s := newStream(pageBuf(opts))
	go func() {
		sess, err := f.takeouts.Init(ctx)
		if err != nil {
			s.finish(err)
			return
		}

		err = paginate(ctx, f.client, f.logger, chatID, opts, sess.ID, s.ch)

		// Finish must run even when ctx is already cancelled.
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if ferr := f.takeouts.Finish(finishCtx, err == nil); ferr != nil && err == nil {
			err = ferr
		}

		s.finish(err)
	}()
	return s
}
