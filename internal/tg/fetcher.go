package tg

import (
	"context"

	"github.com/pcruz7/tgarc/internal/store"
)

// FetchOptions bound and filter a history fetch.
type FetchOptions struct {
	// PageSize is the per-page limit requested from the platform.
	PageSize int

	// MinID/MaxID bound the fetch by platform message id. MinID is the
	// exclusive lower bound used by incremental syncs.
	MinID int64
	MaxID int64

	// Since/Until filter by message time (unix seconds). Zero = unbounded.
	Since int64
	Until int64

	// Types is an allow-list of message types ("text", "photo", ...).
	// Empty allows everything.
	Types []string
}

// Fetcher produces a lazy stream of canonical messages for one chat. A
// stream is not restartable mid-flight; re-invoke Fetch with new offset
// bounds instead.
type Fetcher interface {
	Fetch(ctx context.Context, chatID int64, opts FetchOptions) *MessageStream
}

// MessageStream is a channel-backed lazy sequence of converted messages.
// Consume Messages() until it closes, then check Err().
type MessageStream struct {
	ch  chan *store.Message
	err error
}

func newStream(buf int) *MessageStream {
	return &MessageStream{ch: make(chan *store.Message, buf)}
}

// Messages returns the stream channel. Closed when the fetch finishes,
// fails, or is cancelled.
func (s *MessageStream) Messages() <-chan *store.Message { return s.ch }

// Err reports the terminal error. Only valid after Messages() is closed.
func (s *MessageStream) Err() error { return s.err }

// finish sets the terminal error and closes the channel. The error write
// happens before the close, so consumers that drain the channel observe it.
func (s *MessageStream) finish(err error) {
	s.err = err
	close(s.ch)
}

// Collect drains the stream into a slice. Test and convenience helper.
func (s *MessageStream) Collect() ([]*store.Message, error) {
	var msgs []*store.Message
	for m := range s.ch {
		msgs = append(msgs, m)
	}
	return msgs, s.err
}

// typeOf reports the filterable type of a raw message.
func typeOf(raw *RawMessage) string {
	if raw.Media != nil {
		return raw.Media.Kind
	}
	return "text"
}

// passesFilter applies the time window and type allow-list. The pagination
// cursor advances regardless of the outcome, so filtered pages never stall.
func passesFilter(raw *RawMessage, opts FetchOptions) bool {
	if opts.Since > 0 && raw.Date < opts.Since {
		return false
	}
	if opts.Until > 0 && raw.Date > opts.Until {
		return false
	}
	if len(opts.Types) == 0 {
		return true
	}
	t := typeOf(raw)
	for _, allowed := range opts.Types {
		if t == allowed {
			return true
		}
	}
	return false
}
