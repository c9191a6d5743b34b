package store

// Reply describes the reply target of a message, when it is a reply.
type Reply struct {
	IsReply bool
	ToID    string
	ToName  string
}

// Forward describes the forward origin of a message, when it is a forward.
type Forward struct {
	IsForward     bool
	FromChatID    string
	FromChatName  string
	FromMessageID string
}

// MediaRef points at media belonging to a message. Ref is the opaque
// platform file reference; Path is empty until a media resolver downloads
// the file.
type MediaRef struct {
	Type     string `json:"type"`
	Ref      string `json:"ref,omitempty"`
	Path     string `json:"path,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is the canonical, platform-agnostic message shape that every
// resolver and the store operate on. (Platform, PlatformMsgID, ChatID) is
// the identity; ID is an opaque uuid assigned at conversion time.
type Message struct {
	ID            string
	Platform      string
	PlatformMsgID string
	ChatID        string
	FromID        string
	FromName      string
	Content       string
	Reply         Reply
	Forward       Forward
	Links         []string
	Tokens        []string
	Media         []MediaRef
	Vector        []float32
	VectorDim     int
	CreatedAt     int64
	UpdatedAt     int64
	DeletedAt     *int64
}

// Chat represents a synced chat header.
type Chat struct {
	ChatID        int64
	Platform      string
	Title         string
	Kind          string // user, group, channel
	Username      string
	MemberCount   int
	LastMessageID string
	UpdatedAt     int64
}

// SyncStatus is the persisted per-chat, per-kind sync task state.
type SyncStatus struct {
	ChatID    int64
	Kind      string // metadata or messages
	Status    string // queued, running, completed, failed, cancelled
	Error     string
	UpdatedAt int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
