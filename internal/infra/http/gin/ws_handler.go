package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"quotechat/internal/domain/chat"
	"quotechat/internal/infra/realtime"
)

// RealtimeHandler bridges the websocket endpoint to the hub.
type RealtimeHandler struct {
	Hub    *realtime.Hub
	Logger *slog.Logger
}

// Serve upgrades the connection and blocks for its lifetime.
func (h RealtimeHandler) Serve(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	if err := h.Hub.HandleConnection(c.Writer, c.Request, roomID, p.UserID, p.SenderType); err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		// Upgrade failures already wrote a response.
		if h.Logger != nil {
			h.Logger.Warn("websocket session ended with error", "room_id", roomID, "user_id", p.UserID, "error", err)
		}
	}
}

var _ RealtimeHTTP = (*RealtimeHandler)(nil)
