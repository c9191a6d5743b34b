package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat header record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (chat_id, platform, title, kind, username, member_count, last_message_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			username = excluded.username,
			member_count = excluded.member_count,
			last_message_id = CASE WHEN excluded.last_message_id != '' THEN excluded.last_message_id ELSE chats.last_message_id END,
			updated_at = excluded.updated_at`,
		c.ChatID, c.Platform, c.Title, c.Kind, c.Username, c.MemberCount, c.LastMessageID, now)
	return err
}

// GetChat returns a single chat by id, or nil when absent.
func (db *DB) GetChat(chatID int64) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT chat_id, platform, title, kind, username, member_count, last_message_id, updated_at
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ChatID, &c.Platform, &c.Title, &c.Kind, &c.Username, &c.MemberCount, &c.LastMessageID, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns chats sorted by most recently updated.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT chat_id, platform, title, kind, username, member_count, last_message_id, updated_at
		FROM chats
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ChatID, &c.Platform, &c.Title, &c.Kind, &c.Username, &c.MemberCount, &c.LastMessageID, &c.UpdatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// MessageCount returns the number of archived messages.
func (db *DB) MessageCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// ChatCount returns the number of known chats.
func (db *DB) ChatCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}
