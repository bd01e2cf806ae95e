package chat

import (
	"context"
	"time"
)

// Store is the server-side persistence contract for rooms and messages.
// Implementations assign positive, monotonically increasing message ids.
type Store interface {
	FindRoomByRequest(ctx context.Context, requestID int64) (*Room, error)
	GetRoom(ctx context.Context, roomID int64) (*Room, error)
	CreateRoom(ctx context.Context, requestID int64, expertID, customerID string, now time.Time) (*Room, error)
	ListMessages(ctx context.Context, roomID int64) ([]Message, error)
	AppendMessage(ctx context.Context, msg Message) (Message, error)
	// MarkReadUpTo marks every message at or before the target read and
	// returns how many changed.
	MarkReadUpTo(ctx context.Context, roomID, messageID int64) (int64, error)
	// MarkAllRead marks the whole room read and returns how many changed.
	MarkAllRead(ctx context.Context, roomID int64) (int64, error)
	SetLastMessage(ctx context.Context, roomID int64, text string, at time.Time) error
	SetUnreadCount(ctx context.Context, roomID int64, count int) error
	IncrementUnread(ctx context.Context, roomID int64) error
}
