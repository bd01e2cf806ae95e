package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"quotechat/internal/domain/chat"
)

// RoomHandler serves room lifecycle and the summary fields the room-list
// collaborator owns.
type RoomHandler struct {
	Store  chat.Store
	Logger *slog.Logger
}

// FindByRequest resolves the room for a quote request; 404 when absent so
// clients can lazily create it.
func (h RoomHandler) FindByRequest(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	requestID, err := strconv.ParseInt(c.Param("requestId"), 10, 64)
	if err != nil || requestID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	room, err := h.Store.FindRoomByRequest(c.Request.Context(), requestID)
	if err != nil {
		h.respondStoreError(c, err, "find room", "request_id", requestID)
		return
	}
	if !room.Participant(p.UserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, room)
}

// Create makes the room for a (request, expert) pair; the caller becomes the
// customer side. Recreating an existing pair returns the existing room.
func (h RoomHandler) Create(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		RequestID int64  `json:"request_id"`
		ExpertID  string `json:"expert_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ExpertID = strings.TrimSpace(req.ExpertID)
	if req.RequestID <= 0 || req.ExpertID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request_id and expert_id are required"})
		return
	}
	if req.ExpertID == p.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start chat with yourself"})
		return
	}
	room, err := h.Store.CreateRoom(c.Request.Context(), req.RequestID, req.ExpertID, p.UserID, time.Now())
	if err != nil {
		h.respondStoreError(c, err, "create room", "request_id", req.RequestID)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// ListMessages returns room history, oldest first.
func (h RoomHandler) ListMessages(c *gin.Context) {
	room, ok := h.roomForParticipant(c)
	if !ok {
		return
	}
	messages, err := h.Store.ListMessages(c.Request.Context(), room.ID)
	if err != nil {
		h.respondStoreError(c, err, "list messages", "room_id", room.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": messages})
}

// UpdateLastMessage sets the room-list summary line.
func (h RoomHandler) UpdateLastMessage(c *gin.Context) {
	room, ok := h.roomForParticipant(c)
	if !ok {
		return
	}
	var req struct {
		LastMessage   string    `json:"last_message"`
		LastMessageAt time.Time `json:"last_message_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.LastMessageAt.IsZero() {
		req.LastMessageAt = time.Now()
	}
	if err := h.Store.SetLastMessage(c.Request.Context(), room.ID, req.LastMessage, req.LastMessageAt); err != nil {
		h.respondStoreError(c, err, "update last message", "room_id", room.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UpdateUnread sets the unread counter, typically resetting it to zero.
func (h RoomHandler) UpdateUnread(c *gin.Context) {
	room, ok := h.roomForParticipant(c)
	if !ok {
		return
	}
	var req struct {
		UnreadCount *int `json:"unread_count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UnreadCount == nil || *req.UnreadCount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unread_count is required"})
		return
	}
	if err := h.Store.SetUnreadCount(c.Request.Context(), room.ID, *req.UnreadCount); err != nil {
		h.respondStoreError(c, err, "update unread", "room_id", room.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h RoomHandler) roomForParticipant(c *gin.Context) (*chat.Room, bool) {
	p, ok := requirePrincipal(c)
	if !ok {
		return nil, false
	}
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return nil, false
	}
	room, err := h.Store.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		h.respondStoreError(c, err, "load room", "room_id", roomID)
		return nil, false
	}
	if !room.Participant(p.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
		return nil, false
	}
	return room, true
}

func (h RoomHandler) respondStoreError(c *gin.Context, err error, action string, attrs ...any) {
	if errors.Is(err, chat.ErrRoomNotFound) || errors.Is(err, chat.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Logger != nil {
		h.Logger.Error("store call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
}

var _ RoomHTTP = (*RoomHandler)(nil)
