package tg

import (
	"context"
	"fmt"
	"sync"
)

// fakeClient is an in-memory RemoteClient for tests. History is held
// newest-first per chat, the way the platform serves it.
type fakeClient struct {
	mu sync.Mutex

	history map[int64][]RawMessage

	restored     string
	connected    bool
	authorized   bool
	needPassword bool
	code         string
	password     string

	historyErrs []error // popped one per GetHistory call

	takeoutDelay  bool
	takeoutActive bool
	takeoutInits  int
	finishCalls   int

	historyCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{history: make(map[int64][]RawMessage), authorized: true}
}

func (f *fakeClient) RestoreSession(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = token
	return nil
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeClient) IsAuthorized(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, nil
}

func (f *fakeClient) SignIn(ctx context.Context, code CodeProvider, password PasswordProvider) error {
	got, err := code(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	want, needPw, wantPw := f.code, f.needPassword, f.password
	f.mu.Unlock()
	if got != want {
		return &Error{Code: "PHONE_CODE_INVALID"}
	}
	if needPw {
		pw, err := password(ctx)
		if err != nil {
			return err
		}
		if pw != wantPw {
			return &Error{Code: "PASSWORD_HASH_INVALID"}
		}
	}
	f.mu.Lock()
	f.authorized = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) ExportSession(context.Context) (string, error) {
	return "exported-token", nil
}

func (f *fakeClient) GetHistory(_ context.Context, req HistoryRequest) (*HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++

	if len(f.historyErrs) > 0 {
		err := f.historyErrs[0]
		f.historyErrs = f.historyErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	if req.TakeoutID != "" && !f.takeoutActive {
		return nil, &Error{Code: "TAKEOUT_REQUIRED"}
	}

	var page []RawMessage
	for _, m := range f.history[req.ChatID] {
		if req.OffsetID > 0 && m.ID >= req.OffsetID {
			continue
		}
		page = append(page, m)
		if len(page) == req.Limit {
			break
		}
	}
	return &HistoryPage{Messages: page, Total: len(f.history[req.ChatID])}, nil
}

func (f *fakeClient) Invoke(_ context.Context, req any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r := req.(type) {
	case InitTakeoutRequest:
		f.takeoutInits++
		if f.takeoutDelay {
			return nil, TakeoutInitDelay(3600)
		}
		f.takeoutActive = true
		return InitTakeoutResponse{ID: "tk-1"}, nil
	case FinishTakeoutRequest:
		f.finishCalls++
		f.takeoutActive = false
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected invoke %T", r)
	}
}

func (f *fakeClient) DownloadMedia(_ context.Context, ref *RawMedia, destDir string) (string, int64, error) {
	return destDir + "/" + ref.Ref, 128, nil
}

func (f *fakeClient) GetMe(context.Context) (*User, error) {
	return &User{ID: 1, Username: "me"}, nil
}

func (f *fakeClient) GetDialogs(context.Context) ([]Dialog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Dialog
	for chatID, msgs := range f.history {
		d := Dialog{ChatID: chatID, Title: fmt.Sprintf("chat %d", chatID), Kind: "group"}
		if len(msgs) > 0 {
			d.TopMessageID = msgs[0].ID
		}
		out = append(out, d)
	}
	return out, nil
}

// seedChat fills a chat with n text messages, ids n..1 newest-first.
func (f *fakeClient) seedChat(chatID int64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := make([]RawMessage, 0, n)
	for id := int64(n); id >= 1; id-- {
		msgs = append(msgs, RawMessage{
			ID:       id,
			ChatID:   chatID,
			FromID:   10 + id%3,
			FromName: fmt.Sprintf("user%d", 10+id%3),
			Text:     fmt.Sprintf("message %d", id),
			Date:     1700000000 + id,
		})
	}
	f.history[chatID] = msgs
}
