package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotechat/internal/domain/chat"
	"quotechat/internal/infra/storage/memory"
)

func newRoomRouter(t *testing.T, store chat.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Identity())
	h := RoomHandler{Store: store}
	router.GET("/api/v1/chat/rooms/by-request/:requestId", h.FindByRequest)
	router.POST("/api/v1/chat/rooms", h.Create)
	router.GET("/api/v1/chat/rooms/:id/messages", h.ListMessages)
	router.PATCH("/api/v1/chat/rooms/:id/last-message", h.UpdateLastMessage)
	router.PATCH("/api/v1/chat/rooms/:id/unread", h.UpdateUnread)
	return router
}

func doRequest(router *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRoom(t *testing.T) {
	store := memory.NewStore()
	router := newRoomRouter(t, store)

	rec := doRequest(router, http.MethodPost, "/api/v1/chat/rooms", "C1",
		map[string]any{"request_id": 42, "expert_id": "E1"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var room chat.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, int64(42), room.RequestID)
	assert.Equal(t, "E1", room.ExpertID)
	assert.Equal(t, "C1", room.CustomerID)
}

func TestCreateRoomValidation(t *testing.T) {
	store := memory.NewStore()
	router := newRoomRouter(t, store)

	tests := []struct {
		name   string
		userID string
		body   map[string]any
		want   int
	}{
		{"no identity", "", map[string]any{"request_id": 42, "expert_id": "E1"}, http.StatusUnauthorized},
		{"missing request", "C1", map[string]any{"expert_id": "E1"}, http.StatusBadRequest},
		{"missing expert", "C1", map[string]any{"request_id": 42}, http.StatusBadRequest},
		{"self chat", "E1", map[string]any{"request_id": 42, "expert_id": "E1"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/api/v1/chat/rooms", tt.userID, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestFindByRequest(t *testing.T) {
	store := memory.NewStore()
	room, err := store.CreateRoom(context.Background(), 42, "E1", "C1", time.Now())
	require.NoError(t, err)
	router := newRoomRouter(t, store)

	t.Run("participant sees the room", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/chat/rooms/by-request/42", "C1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got chat.Room
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, room.ID, got.ID)
	})

	t.Run("foreign room looks absent", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/chat/rooms/by-request/42", "X9", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown request", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/chat/rooms/by-request/99", "C1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := doRequest(router, http.MethodGet, "/api/v1/chat/rooms/by-request/abc", "C1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListMessages(t *testing.T) {
	store := memory.NewStore()
	room, err := store.CreateRoom(context.Background(), 42, "E1", "C1", time.Now())
	require.NoError(t, err)
	_, err = store.AppendMessage(context.Background(), chat.Message{
		RoomID: room.ID, SenderType: chat.SenderWeb, SenderID: "C1", Text: "hi",
	})
	require.NoError(t, err)
	router := newRoomRouter(t, store)

	rec := doRequest(router, http.MethodGet, "/api/v1/chat/rooms/1/messages", "E1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Items []chat.Message `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "hi", payload.Items[0].Text)
}

func TestListMessagesForbiddenForStranger(t *testing.T) {
	store := memory.NewStore()
	_, err := store.CreateRoom(context.Background(), 42, "E1", "C1", time.Now())
	require.NoError(t, err)
	router := newRoomRouter(t, store)

	rec := doRequest(router, http.MethodGet, "/api/v1/chat/rooms/1/messages", "X9", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateLastMessage(t *testing.T) {
	store := memory.NewStore()
	_, err := store.CreateRoom(context.Background(), 42, "E1", "C1", time.Now())
	require.NoError(t, err)
	router := newRoomRouter(t, store)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := doRequest(router, http.MethodPatch, "/api/v1/chat/rooms/1/last-message", "C1",
		map[string]any{"last_message": "안녕하세요", "last_message_at": at})

	require.Equal(t, http.StatusOK, rec.Code)
	room, err := store.GetRoom(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요", room.LastMessage)
	assert.Equal(t, at, room.LastMessageAt)
}

func TestUpdateUnread(t *testing.T) {
	store := memory.NewStore()
	_, err := store.CreateRoom(context.Background(), 42, "E1", "C1", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.IncrementUnread(context.Background(), 1))
	router := newRoomRouter(t, store)

	t.Run("reset to zero", func(t *testing.T) {
		rec := doRequest(router, http.MethodPatch, "/api/v1/chat/rooms/1/unread", "C1",
			map[string]any{"unread_count": 0})
		require.Equal(t, http.StatusOK, rec.Code)

		room, err := store.GetRoom(context.Background(), 1)
		require.NoError(t, err)
		assert.Zero(t, room.UnreadCount)
	})

	t.Run("count is required", func(t *testing.T) {
		rec := doRequest(router, http.MethodPatch, "/api/v1/chat/rooms/1/unread", "C1", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("negative rejected", func(t *testing.T) {
		rec := doRequest(router, http.MethodPatch, "/api/v1/chat/rooms/1/unread", "C1",
			map[string]any{"unread_count": -1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
