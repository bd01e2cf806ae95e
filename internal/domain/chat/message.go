package chat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrRoomNotFound    = errors.New("chat: room not found")
	ErrMessageNotFound = errors.New("chat: message not found")
	ErrEmptyMessage    = errors.New("chat: message has no content")
)

// SenderType distinguishes the two parties of a room.
type SenderType string

const (
	SenderWeb    SenderType = "WEB"
	SenderExpert SenderType = "EXPERT"
)

// Message is a single chat message. Server-assigned ids are positive;
// optimistic messages created locally before confirmation carry negative ids
// so they can never collide with a real id.
type Message struct {
	ID         int64      `json:"message_id" bson:"message_id"`
	RoomID     int64      `json:"room_id" bson:"room_id"`
	SenderType SenderType `json:"sender_type" bson:"sender_type"`
	SenderID   string     `json:"sender_id" bson:"sender_id"`
	Text       string     `json:"message,omitempty" bson:"message,omitempty"`
	FilePath   string     `json:"file_path,omitempty" bson:"file_path,omitempty"`
	IsRead     bool       `json:"is_read" bson:"is_read"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
}

// Pending reports whether the message is still an optimistic local copy.
func (m Message) Pending() bool {
	return m.ID < 0
}

// HasContent reports whether the message carries text or an attachment.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Text) != "" || m.FilePath != ""
}

// SameContent matches an optimistic message against its confirmed echo.
func (m Message) SameContent(other Message) bool {
	return m.SenderType == other.SenderType &&
		strings.TrimSpace(m.Text) == strings.TrimSpace(other.Text) &&
		m.FilePath == other.FilePath
}

// Validate checks the fields a message must carry before it is stored.
func (m Message) Validate() error {
	if m.SenderID == "" {
		return errors.New("chat: sender id is required")
	}
	if m.SenderType != SenderWeb && m.SenderType != SenderExpert {
		return fmt.Errorf("chat: unknown sender type %q", m.SenderType)
	}
	if !m.HasContent() {
		return ErrEmptyMessage
	}
	return nil
}

// TimeAgo renders a coarse relative timestamp for display.
func (m Message) TimeAgo(now time.Time) string {
	d := now.Sub(m.CreatedAt)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// SortByCreatedAt orders messages chronologically, oldest first. Ties fall
// back to id so the order is stable regardless of arrival order.
func SortByCreatedAt(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// ReadUpTo returns the ids of unread messages at or before the target
// message in chronological order. A receipt for one message is proof that
// everything before it was also seen, so callers mark the whole prefix.
// The target id must be present; otherwise the result is empty.
func ReadUpTo(messages []Message, targetID int64) []int64 {
	sorted := append([]Message(nil), messages...)
	SortByCreatedAt(sorted)

	cut := -1
	for i, m := range sorted {
		if m.ID == targetID {
			cut = i
			break
		}
	}
	if cut < 0 {
		return nil
	}
	var ids []int64
	for _, m := range sorted[:cut+1] {
		if !m.IsRead {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
