package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// upsertMessageSQL inserts a canonical message or, on identity conflict,
// updates it without clobbering enrichment: tokens, media, links and the
// vector only overwrite when the incoming row actually carries them, so
// re-recording a raw batch after a resolver pass keeps the resolver output.
const upsertMessageSQL = `
	INSERT INTO messages (
		id, platform, platform_msg_id, chat_id, from_id, from_name, content,
		is_reply, reply_to_id, reply_to_name,
		is_forward, forward_from_chat_id, forward_from_chat_name, forward_from_msg_id,
		links, tokens, media, vector, vector_dim,
		created_at, updated_at, deleted_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(platform, platform_msg_id, chat_id) DO UPDATE SET
		from_id = excluded.from_id,
		from_name = CASE WHEN excluded.from_name != '' THEN excluded.from_name ELSE messages.from_name END,
		content = excluded.content,
		is_reply = excluded.is_reply,
		reply_to_id = excluded.reply_to_id,
		reply_to_name = CASE WHEN excluded.reply_to_name != '' THEN excluded.reply_to_name ELSE messages.reply_to_name END,
		is_forward = excluded.is_forward,
		forward_from_chat_id = excluded.forward_from_chat_id,
		forward_from_chat_name = CASE WHEN excluded.forward_from_chat_name != '' THEN excluded.forward_from_chat_name ELSE messages.forward_from_chat_name END,
		forward_from_msg_id = excluded.forward_from_msg_id,
		links = CASE WHEN excluded.links != '[]' THEN excluded.links ELSE messages.links END,
		tokens = CASE WHEN excluded.tokens != '[]' THEN excluded.tokens ELSE messages.tokens END,
		media = CASE WHEN excluded.media != '[]' THEN excluded.media ELSE messages.media END,
		vector = CASE WHEN excluded.vector IS NOT NULL THEN excluded.vector ELSE messages.vector END,
		vector_dim = CASE WHEN excluded.vector IS NOT NULL THEN excluded.vector_dim ELSE messages.vector_dim END,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at`

// RecordMessages upserts a batch of canonical messages in one transaction.
// Idempotent on (platform, platform_msg_id, chat_id).
func (db *DB) RecordMessages(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(upsertMessageSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		args, err := upsertArgs(m, now)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.PlatformMsgID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func upsertArgs(m *Message, now int64) ([]any, error) {
	links, err := json.Marshal(emptyIfNil(m.Links))
	if err != nil {
		return nil, fmt.Errorf("marshal links: %w", err)
	}
	tokens, err := json.Marshal(emptyIfNil(m.Tokens))
	if err != nil {
		return nil, fmt.Errorf("marshal tokens: %w", err)
	}
	media, err := json.Marshal(m.mediaOrEmpty())
	if err != nil {
		return nil, fmt.Errorf("marshal media: %w", err)
	}

	var vector any
	dim := 0
	if len(m.Vector) > 0 {
		vector = encodeVector(m.Vector)
		dim = m.VectorDim
		if dim == 0 {
			dim = len(m.Vector)
		}
	}

	createdAt := m.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}

	var deletedAt any
	if m.DeletedAt != nil {
		deletedAt = *m.DeletedAt
	}

	return []any{
		m.ID, m.Platform, m.PlatformMsgID, m.ChatID, m.FromID, m.FromName, m.Content,
		m.Reply.IsReply, m.Reply.ToID, m.Reply.ToName,
		m.Forward.IsForward, m.Forward.FromChatID, m.Forward.FromChatName, m.Forward.FromMessageID,
		string(links), string(tokens), string(media), vector, dim,
		createdAt, now, deletedAt,
	}, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (m *Message) mediaOrEmpty() []MediaRef {
	if m.Media == nil {
		return []MediaRef{}
	}
	return m.Media
}

const selectMessageCols = `
	id, platform, platform_msg_id, chat_id, from_id, from_name, content,
	is_reply, reply_to_id, reply_to_name,
	is_forward, forward_from_chat_id, forward_from_chat_name, forward_from_msg_id,
	links, tokens, media, vector, vector_dim, created_at, updated_at, deleted_at`

// ListMessages returns messages for a chat using keyset pagination by
// creation time descending.
func (db *DB) ListMessages(chatID string, beforeTs int64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT `+selectMessageCols+`
		FROM messages
		WHERE chat_id = ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a message by its canonical identity, or nil when absent.
func (db *DB) GetMessage(platform, platformMsgID, chatID string) (*Message, error) {
	row := db.QueryRow(`
		SELECT `+selectMessageCols+`
		FROM messages
		WHERE platform = ? AND platform_msg_id = ? AND chat_id = ?`,
		platform, platformMsgID, chatID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var links, tokens, media string
	var vector []byte
	var deletedAt sql.NullInt64
	err := row.Scan(
		&m.ID, &m.Platform, &m.PlatformMsgID, &m.ChatID, &m.FromID, &m.FromName, &m.Content,
		&m.Reply.IsReply, &m.Reply.ToID, &m.Reply.ToName,
		&m.Forward.IsForward, &m.Forward.FromChatID, &m.Forward.FromChatName, &m.Forward.FromMessageID,
		&links, &tokens, &media, &vector, &m.VectorDim, &m.CreatedAt, &m.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(links), &m.Links); err != nil {
		return nil, fmt.Errorf("unmarshal links: %w", err)
	}
	if err := json.Unmarshal([]byte(tokens), &m.Tokens); err != nil {
		return nil, fmt.Errorf("unmarshal tokens: %w", err)
	}
	if err := json.Unmarshal([]byte(media), &m.Media); err != nil {
		return nil, fmt.Errorf("unmarshal media: %w", err)
	}
	if len(vector) > 0 {
		m.Vector = decodeVector(vector)
	}
	if deletedAt.Valid {
		v := deletedAt.Int64
		m.DeletedAt = &v
	}
	return &m, nil
}

// encodeVector packs float32s little-endian, 4 bytes each.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
