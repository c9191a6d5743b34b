package tg

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/pcruz7/tgarc/internal/store"
)

// Platform is the tag stamped on every converted message.
const Platform = "telegram"

var linkPattern = regexp.MustCompile(`https?://[^\s<>"')]+`)

// Convert turns a raw platform message into the canonical shape. Returns
// nil for tombstones, service markers, messages without a platform id, and
// messages without a resolvable sender: none of those enter the pipeline.
// The canonical id is generated here; the platform id never is.
func Convert(raw *RawMessage) *store.Message {
	if raw == nil || raw.Empty || raw.Service {
		return nil
	}
	if raw.ID == 0 || raw.FromID == 0 {
		return nil
	}

	m := &store.Message{
		ID:            uuid.New().String(),
		Platform:      Platform,
		PlatformMsgID: strconv.FormatInt(raw.ID, 10),
		ChatID:        strconv.FormatInt(raw.ChatID, 10),
		FromID:        strconv.FormatInt(raw.FromID, 10),
		FromName:      raw.FromName,
		Content:       raw.Text,
		CreatedAt:     raw.Date * 1000,
		UpdatedAt:     raw.Date * 1000,
	}
	if raw.EditDate > 0 {
		m.UpdatedAt = raw.EditDate * 1000
	}

	if raw.ReplyToID != 0 {
		m.Reply = store.Reply{
			IsReply: true,
			ToID:    strconv.FormatInt(raw.ReplyToID, 10),
			ToName:  raw.ReplyToName,
		}
	}
	if raw.FwdFromMsgID != 0 || raw.FwdFromChatID != 0 {
		m.Forward = store.Forward{
			IsForward:    true,
			FromChatID:   formatIfSet(raw.FwdFromChatID),
			FromChatName: raw.FwdFromChatName,
		}
		if raw.FwdFromMsgID != 0 {
			m.Forward.FromMessageID = strconv.FormatInt(raw.FwdFromMsgID, 10)
		}
	}

	if links := linkPattern.FindAllString(raw.Text, -1); len(links) > 0 {
		m.Links = links
	}

	if raw.Media != nil {
		m.Media = []store.MediaRef{{
			Type:     raw.Media.Kind,
			Ref:      raw.Media.Ref,
			MimeType: raw.Media.MimeType,
		}}
	}

	return m
}

func formatIfSet(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
