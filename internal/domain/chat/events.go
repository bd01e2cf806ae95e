package chat

// EventType labels the frames exchanged over the realtime channel.
type EventType string

const (
	// EventMessage carries a chat message. Server to client it is the full
	// stored message; the sender's own copy doubles as the send confirmation.
	EventMessage EventType = "message"
	// EventFile is the client-side request to send an uploaded attachment.
	EventFile EventType = "file"
	// EventTyping signals composition state changes.
	EventTyping EventType = "typing"
	// EventRead is a read receipt for a single message; receivers cascade it
	// to everything chronologically earlier.
	EventRead EventType = "read"
	// EventJoin and EventLeave are presence signals.
	EventJoin  EventType = "join"
	EventLeave EventType = "leave"
)

// Event is the single envelope used in both directions on the realtime
// channel. Fields irrelevant to a given type stay zero; receivers ignore
// fields they do not expect rather than rejecting the frame.
type Event struct {
	Type      EventType `json:"type"`
	RoomID    int64     `json:"room_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Text      string    `json:"message,omitempty"`
	FilePath  string    `json:"file_path,omitempty"`
	IsTyping  bool      `json:"is_typing,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Message   *Message  `json:"payload,omitempty"`
}
