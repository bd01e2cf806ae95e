package chat

import "time"

// Room is a persistent conversation between the customer who posted a quote
// request and the contractor whose answer was adopted. At most one room
// exists per (request, expert) pair; the request id is the natural lookup key.
type Room struct {
	ID            int64     `json:"room_id" bson:"room_id"`
	RequestID     int64     `json:"request_id" bson:"request_id"`
	ExpertID      string    `json:"expert_id" bson:"expert_id"`
	CustomerID    string    `json:"customer_id" bson:"customer_id"`
	LastMessage   string    `json:"last_message,omitempty" bson:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty" bson:"last_message_at,omitempty"`
	UnreadCount   int       `json:"unread_count" bson:"unread_count"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}

// Participant reports whether the given user belongs to the room.
func (r Room) Participant(userID string) bool {
	return userID != "" && (userID == r.ExpertID || userID == r.CustomerID)
}

// PeerOf returns the other participant of the room.
func (r Room) PeerOf(userID string) string {
	if userID == r.CustomerID {
		return r.ExpertID
	}
	return r.CustomerID
}
