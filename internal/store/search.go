package store

import "encoding/json"

// SearchMessages performs a full-text search on archived message content.
func (db *DB) SearchMessages(query string, chatID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT ` + prefixCols("m") + `,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if chatID != "" {
		q += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		r, err := scanSearchResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func prefixCols(alias string) string {
	return alias + `.id, ` + alias + `.platform, ` + alias + `.platform_msg_id, ` + alias + `.chat_id, ` +
		alias + `.from_id, ` + alias + `.from_name, ` + alias + `.content, ` +
		alias + `.is_reply, ` + alias + `.reply_to_id, ` + alias + `.reply_to_name, ` +
		alias + `.is_forward, ` + alias + `.forward_from_chat_id, ` + alias + `.forward_from_chat_name, ` + alias + `.forward_from_msg_id, ` +
		alias + `.links, ` + alias + `.tokens, ` + alias + `.media, ` + alias + `.vector, ` + alias + `.vector_dim, ` +
		alias + `.created_at, ` + alias + `.updated_at, ` + alias + `.deleted_at`
}

func scanSearchResult(rows rowScanner) (SearchResult, error) {
	var r SearchResult
	var links, tokens, media string
	var vector []byte
	var deletedAt *int64
	m := &r.Message
	err := rows.Scan(
		&m.ID, &m.Platform, &m.PlatformMsgID, &m.ChatID, &m.FromID, &m.FromName, &m.Content,
		&m.Reply.IsReply, &m.Reply.ToID, &m.Reply.ToName,
		&m.Forward.IsForward, &m.Forward.FromChatID, &m.Forward.FromChatName, &m.Forward.FromMessageID,
		&links, &tokens, &media, &vector, &m.VectorDim, &m.CreatedAt, &m.UpdatedAt, &deletedAt,
		&r.Snippet,
	)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(links), &m.Links); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(tokens), &m.Tokens); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(media), &m.Media); err != nil {
		return r, err
	}
	if len(vector) > 0 {
		m.Vector = decodeVector(vector)
	}
	m.DeletedAt = deletedAt
	return r, nil
}
