package session

import (
	"errors"
	"sync"

	"quotechat/internal/domain/chat"
)

var (
	// ErrDuplicateMessage means the caller broke the replace-before-add
	// discipline for optimistic messages.
	ErrDuplicateMessage = errors.New("session: message id already present")
	// ErrUnknownMessage is returned when an id is not in the store.
	ErrUnknownMessage = errors.New("session: message not found")
)

// MessageStore holds the messages of the currently open room. It is the
// authoritative local collection: the controller is its only writer, the UI
// reads time-sorted snapshots. Ordering is re-derived on read instead of
// maintaining a second index; room sizes are bounded and UI-scale.
type MessageStore struct {
	mu    sync.RWMutex
	items map[int64]chat.Message
}

// NewMessageStore builds an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{items: make(map[int64]chat.Message)}
}

// Add inserts a message. At most one message per id may exist.
func (s *MessageStore) Add(msg chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[msg.ID]; ok {
		return ErrDuplicateMessage
	}
	s.items[msg.ID] = msg
	return nil
}

// Remove evicts a message; used only for superseded optimistic entries.
func (s *MessageStore) Remove(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrUnknownMessage
	}
	delete(s.items, id)
	return nil
}

// Confirm atomically replaces a pending optimistic message with its
// server-confirmed counterpart, so the two never coexist in a snapshot.
func (s *MessageStore) Confirm(pendingID int64, confirmed chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[pendingID]; !ok {
		return ErrUnknownMessage
	}
	if _, ok := s.items[confirmed.ID]; ok {
		return ErrDuplicateMessage
	}
	delete(s.items, pendingID)
	s.items[confirmed.ID] = confirmed
	return nil
}

// MarkRead flips a single message to read.
func (s *MessageStore) MarkRead(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.items[id]
	if !ok {
		return ErrUnknownMessage
	}
	msg.IsRead = true
	s.items[id] = msg
	return nil
}

// MarkReadUpTo applies the read-receipt cascade: every unread message at or
// chronologically before the target becomes read, later ones stay untouched.
// Returns the number of messages changed.
func (s *MessageStore) MarkReadUpTo(targetID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]chat.Message, 0, len(s.items))
	for _, m := range s.items {
		all = append(all, m)
	}
	ids := chat.ReadUpTo(all, targetID)
	for _, id := range ids {
		msg := s.items[id]
		msg.IsRead = true
		s.items[id] = msg
	}
	return len(ids)
}

// MarkAllRead bulk-sets every message to read and returns how many changed.
func (s *MessageStore) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, msg := range s.items {
		if msg.IsRead {
			continue
		}
		msg.IsRead = true
		s.items[id] = msg
		changed++
	}
	return changed
}

// LatestPending finds the most recent optimistic message from the given
// sender whose content matches the confirmed echo.
func (s *MessageStore) LatestPending(echo chat.Message) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found  bool
		newest chat.Message
	)
	for _, m := range s.items {
		if !m.Pending() || m.SenderID != echo.SenderID || !m.SameContent(echo) {
			continue
		}
		if !found || m.CreatedAt.After(newest.CreatedAt) || (m.CreatedAt.Equal(newest.CreatedAt) && m.ID < newest.ID) {
			newest = m
			found = true
		}
	}
	return newest, found
}

// Sorted returns a chronological snapshot of the room.
func (s *MessageStore) Sorted() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.Message, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m)
	}
	chat.SortByCreatedAt(out)
	return out
}

// UnreadCount returns the number of unread messages held.
func (s *MessageStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.items {
		if !m.IsRead {
			n++
		}
	}
	return n
}

// Len returns the number of messages held.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear drops all room-scoped state; called when the chat closes.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[int64]chat.Message)
}
