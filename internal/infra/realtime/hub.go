// Package realtime is the websocket fanout for chat rooms. Each connection
// belongs to exactly one room; inbound frames are persisted and re-broadcast
// to every connection in the room, so the sender's own copy doubles as the
// send confirmation.
package realtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quotechat/internal/domain/chat"
)

// Publisher receives room summary changes for downstream consumers.
type Publisher interface {
	PublishRoomUpdate(ctx context.Context, room chat.Room) error
}

// Hub tracks connected clients per room and routes frames between them.
type Hub struct {
	store     chat.Store
	publisher Publisher
	logger    *slog.Logger
	upgrader  websocket.Upgrader
	now       func() time.Time

	mu    sync.RWMutex
	rooms map[int64]map[*client]struct{}
}

type client struct {
	id         string
	userID     string
	senderType chat.SenderType
	roomID     int64
	conn       *websocket.Conn
	send       chan chat.Event
}

// NewHub builds a hub over the given store. The publisher may be nil.
func NewHub(store chat.Store, publisher Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		store:     store,
		publisher: publisher,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now:   time.Now,
		rooms: make(map[int64]map[*client]struct{}),
	}
}

// HandleConnection upgrades the request and serves the room connection until
// the peer goes away. Identity is resolved by the HTTP layer.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, roomID int64, userID string, senderType chat.SenderType) error {
	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		return err
	}
	if !room.Participant(userID) {
		return chat.ErrRoomNotFound
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	cl := &client{
		id:         uuid.NewString(),
		userID:     userID,
		senderType: senderType,
		roomID:     roomID,
		conn:       conn,
		send:       make(chan chat.Event, 32),
	}
	h.register(cl)
	go cl.writePump(h.logger)
	h.readPump(cl)
	return nil
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	room, ok := h.rooms[cl.roomID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[cl.roomID] = room
	}
	room[cl] = struct{}{}
	total := len(room)
	h.mu.Unlock()
	h.logger.Info("client joined", "room_id", cl.roomID, "user_id", cl.userID, "clients", total)

	h.broadcast(cl.roomID, chat.Event{Type: chat.EventJoin, RoomID: cl.roomID, UserID: cl.userID})

	// Presence is proof the joiner now sees the conversation: everything
	// pending becomes read and the room counter resets.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	changed, err := h.store.MarkAllRead(ctx, cl.roomID)
	if err != nil {
		h.logger.Error("mark room read failed", "room_id", cl.roomID, "error", err)
		return
	}
	if changed == 0 {
		return
	}
	if err := h.store.SetUnreadCount(ctx, cl.roomID, 0); err != nil {
		h.logger.Error("unread reset failed", "room_id", cl.roomID, "error", err)
	}
	h.publishRoom(ctx, cl.roomID)
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	room, ok := h.rooms[cl.roomID]
	if ok {
		if _, present := room[cl]; !present {
			ok = false
		}
		delete(room, cl)
		if len(room) == 0 {
			delete(h.rooms, cl.roomID)
		}
	}
	if ok {
		// Closed under the write lock so broadcast, which sends under the
		// read lock, can never hit a closed channel.
		close(cl.send)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.logger.Info("client left", "room_id", cl.roomID, "user_id", cl.userID)
	h.broadcast(cl.roomID, chat.Event{Type: chat.EventLeave, RoomID: cl.roomID, UserID: cl.userID})
}

// peerPresent reports whether someone other than userID is connected.
func (h *Hub) peerPresent(roomID int64, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.rooms[roomID] {
		if cl.userID != userID {
			return true
		}
	}
	return false
}

// broadcast fans the event out to every client in the room. Sends happen
// under the read lock and never block, so a departing client's channel is
// either still open here or already gone from the room set.
func (h *Hub) broadcast(roomID int64, ev chat.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.rooms[roomID] {
		select {
		case cl.send <- ev:
		default:
			h.logger.Warn("dropping frame for slow client", "room_id", roomID, "user_id", cl.userID, "type", string(ev.Type))
		}
	}
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		cl.conn.Close()
		h.unregister(cl)
	}()
	for {
		var ev chat.Event
		if err := cl.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("read failed", "room_id", cl.roomID, "user_id", cl.userID, "error", err)
			}
			return
		}
		h.route(cl, ev)
	}
}

func (h *Hub) route(cl *client, ev chat.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	switch ev.Type {
	case chat.EventMessage, chat.EventFile:
		h.acceptMessage(ctx, cl, ev)
	case chat.EventTyping:
		h.broadcast(cl.roomID, chat.Event{
			Type:     chat.EventTyping,
			RoomID:   cl.roomID,
			UserID:   cl.userID,
			IsTyping: ev.IsTyping,
		})
	case chat.EventRead:
		if _, err := h.store.MarkReadUpTo(ctx, cl.roomID, ev.MessageID); err != nil {
			h.logger.Warn("read receipt rejected", "room_id", cl.roomID, "message_id", ev.MessageID, "error", err)
			return
		}
		h.broadcast(cl.roomID, chat.Event{Type: chat.EventRead, RoomID: cl.roomID, UserID: cl.userID, MessageID: ev.MessageID})
	default:
		// Frames the server does not understand are dropped, not fatal.
		h.logger.Debug("ignoring frame", "type", string(ev.Type), "user_id", cl.userID)
	}
}

func (h *Hub) acceptMessage(ctx context.Context, cl *client, ev chat.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" && ev.FilePath == "" {
		return
	}
	// A message lands already read when the other participant is connected
	// and sees it immediately.
	seen := h.peerPresent(cl.roomID, cl.userID)
	msg := chat.Message{
		RoomID:     cl.roomID,
		SenderType: cl.senderType,
		SenderID:   cl.userID,
		Text:       text,
		FilePath:   ev.FilePath,
		IsRead:     seen,
		CreatedAt:  h.now().UTC(),
	}
	stored, err := h.store.AppendMessage(ctx, msg)
	if err != nil {
		h.logger.Error("message rejected", "room_id", cl.roomID, "user_id", cl.userID, "error", err)
		return
	}
	h.broadcast(cl.roomID, chat.Event{Type: chat.EventMessage, RoomID: cl.roomID, UserID: cl.userID, Message: &stored})

	summary := stored.Text
	if summary == "" {
		summary = stored.FilePath
	}
	if err := h.store.SetLastMessage(ctx, cl.roomID, summary, stored.CreatedAt); err != nil {
		h.logger.Warn("last message update failed", "room_id", cl.roomID, "error", err)
	}
	if !seen {
		if err := h.store.IncrementUnread(ctx, cl.roomID); err != nil {
			h.logger.Warn("unread increment failed", "room_id", cl.roomID, "error", err)
		}
	}
	h.publishRoom(ctx, cl.roomID)
}

func (h *Hub) publishRoom(ctx context.Context, roomID int64) {
	if h.publisher == nil {
		return
	}
	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		h.logger.Warn("room reload for publish failed", "room_id", roomID, "error", err)
		return
	}
	if err := h.publisher.PublishRoomUpdate(ctx, *room); err != nil {
		h.logger.Warn("room update publish failed", "room_id", roomID, "error", err)
	}
}

func (cl *client) writePump(logger *slog.Logger) {
	defer cl.conn.Close()
	for ev := range cl.send {
		if err := cl.conn.WriteJSON(ev); err != nil {
			logger.Warn("write failed", "room_id", cl.roomID, "user_id", cl.userID, "error", err)
			return
		}
	}
	cl.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
