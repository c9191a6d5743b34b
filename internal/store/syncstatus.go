package store

import (
	"database/sql"
	"time"
)

// RecordSyncStatus upserts the persisted sync state for a chat and kind.
func (db *DB) RecordSyncStatus(chatID int64, kind, status, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_status (chat_id, kind, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, kind) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`,
		chatID, kind, status, errMsg, now)
	return err
}

// GetSyncStatus returns the persisted sync state, or nil when never synced.
func (db *DB) GetSyncStatus(chatID int64, kind string) (*SyncStatus, error) {
	var s SyncStatus
	err := db.QueryRow(`
		SELECT chat_id, kind, status, error, updated_at
		FROM sync_status WHERE chat_id = ? AND kind = ?`, chatID, kind).
		Scan(&s.ChatID, &s.Kind, &s.Status, &s.Error, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LastMessageID returns the newest archived platform message id for a chat,
// used by incremental syncs as the lower bound. Empty when no messages.
func (db *DB) LastMessageID(chatID string) (string, error) {
	var id string
	err := db.QueryRow(`
		SELECT platform_msg_id FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC LIMIT 1`, chatID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}
