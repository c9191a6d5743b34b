package tg

import "context"

// CodeProvider supplies the login code for an interactive challenge.
type CodeProvider func(ctx context.Context) (string, error)

// PasswordProvider supplies the two-factor password when the platform
// demands one.
type PasswordProvider func(ctx context.Context) (string, error)

// HistoryRequest asks for one page of chat history older than OffsetID.
type HistoryRequest struct {
	ChatID   int64
	OffsetID int64
	Limit    int
	MinID    int64
	MaxID    int64

	// TakeoutID scopes the request to an active bulk-export session.
	// Zero value means a plain live request.
	TakeoutID string
}

// HistoryPage is one page of raw history.
type HistoryPage struct {
	Messages []RawMessage
	// Total is the platform-reported total message count, when known.
	Total int
}

// RawMessage is the platform-native message shape before conversion.
type RawMessage struct {
	ID          int64
	ChatID      int64
	FromID      int64
	FromName    string
	Text        string
	Date        int64 // unix seconds
	EditDate    int64
	ReplyToID   int64
	ReplyToName string

	FwdFromChatID   int64
	FwdFromChatName string
	FwdFromMsgID    int64

	Media *RawMedia

	// Empty marks a platform tombstone; Service marks join/leave/pin
	// markers. Neither enters the archive.
	Empty   bool
	Service bool
}

// RawMedia is an opaque downloadable media reference.
type RawMedia struct {
	Kind     string // photo, video, document, voice, sticker
	Ref      string // opaque platform file reference
	MimeType string
}

// Dialog is a chat header as reported by the platform.
type Dialog struct {
	ChatID        int64
	Title         string
	Kind          string // user, group, channel
	Username      string
	MemberCount   int
	TopMessageID  int64
	UnreadCount   int
}

// User is a platform account.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return ""
	}
}

// RemoteClient is the opaque transport capability to the remote platform.
// The wire protocol behind it is out of scope; everything here is consumed
// as-is and wrapped in retry by the callers that need it.
type RemoteClient interface {
	// RestoreSession primes the transport with a previously exported
	// token. Called before Connect; an empty token is a no-op.
	RestoreSession(token string) error

	Connect(ctx context.Context) error
	Disconnect() error
	IsAuthorized(ctx context.Context) (bool, error)

	// SignIn drives the interactive challenge. The code provider is always
	// consulted; the password provider only when the platform demands a
	// second factor.
	SignIn(ctx context.Context, code CodeProvider, password PasswordProvider) error

	// ExportSession returns the opaque token to persist for reuse.
	ExportSession(ctx context.Context) (string, error)

	GetHistory(ctx context.Context, req HistoryRequest) (*HistoryPage, error)

	// Invoke sends a raw platform request. Used for the bulk-export
	// session lifecycle, which has no first-class client surface.
	Invoke(ctx context.Context, req any) (any, error)

	DownloadMedia(ctx context.Context, ref *RawMedia, destDir string) (string, int64, error)
	GetMe(ctx context.Context) (*User, error)
	GetDialogs(ctx context.Context) ([]Dialog, error)
}
