// Package memory provides an in-memory chat.Store used by tests and by
// broker-less demo runs of the server.
package memory

import (
	"context"
	"sync"
	"time"

	"quotechat/internal/domain/chat"
)

// Store keeps rooms and messages in process memory.
type Store struct {
	mu       sync.RWMutex
	rooms    map[int64]*chat.Room
	messages map[int64][]chat.Message
	nextRoom int64
	nextMsg  int64
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{
		rooms:    make(map[int64]*chat.Room),
		messages: make(map[int64][]chat.Message),
	}
}

func (s *Store) FindRoomByRequest(ctx context.Context, requestID int64) (*chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, room := range s.rooms {
		if room.RequestID == requestID {
			copied := *room
			return &copied, nil
		}
	}
	return nil, chat.ErrRoomNotFound
}

func (s *Store) GetRoom(ctx context.Context, roomID int64) (*chat.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, chat.ErrRoomNotFound
	}
	copied := *room
	return &copied, nil
}

func (s *Store) CreateRoom(ctx context.Context, requestID int64, expertID, customerID string, now time.Time) (*chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.RequestID == requestID {
			copied := *room
			return &copied, nil
		}
	}
	s.nextRoom++
	room := &chat.Room{
		ID:         s.nextRoom,
		RequestID:  requestID,
		ExpertID:   expertID,
		CustomerID: customerID,
		CreatedAt:  now.UTC(),
	}
	s.rooms[room.ID] = room
	copied := *room
	return &copied, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID int64) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]chat.Message(nil), s.messages[roomID]...)
	chat.SortByCreatedAt(out)
	return out, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := msg.Validate(); err != nil {
		return chat.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return chat.Message{}, chat.ErrRoomNotFound
	}
	s.nextMsg++
	msg.ID = s.nextMsg
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return msg, nil
}

func (s *Store) MarkReadUpTo(ctx context.Context, roomID, messageID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[roomID]
	var cutoff time.Time
	found := false
	for _, m := range msgs {
		if m.ID == messageID {
			cutoff = m.CreatedAt
			found = true
			break
		}
	}
	if !found {
		return 0, chat.ErrMessageNotFound
	}
	var changed int64
	for i := range msgs {
		if !msgs[i].IsRead && !msgs[i].CreatedAt.After(cutoff) {
			msgs[i].IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (s *Store) MarkAllRead(ctx context.Context, roomID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[roomID]
	var changed int64
	for i := range msgs {
		if !msgs[i].IsRead {
			msgs[i].IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (s *Store) SetLastMessage(ctx context.Context, roomID int64, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return chat.ErrRoomNotFound
	}
	room.LastMessage = text
	room.LastMessageAt = at.UTC()
	return nil
}

func (s *Store) SetUnreadCount(ctx context.Context, roomID int64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return chat.ErrRoomNotFound
	}
	room.UnreadCount = count
	return nil
}

func (s *Store) IncrementUnread(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return chat.ErrRoomNotFound
	}
	room.UnreadCount++
	return nil
}

var _ chat.Store = (*Store)(nil)
