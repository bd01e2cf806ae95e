// Package rooms is the thin REST client for room lifecycle and the summary
// fields owned by the room-list service.
package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"quotechat/internal/app/session"
	"quotechat/internal/domain/chat"
)

// Config carries endpoint and credentials for the chat REST API.
type Config struct {
	// BaseURL is the API origin, e.g. http://localhost:8080.
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client wraps the room endpoints of the chat server.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		FilePath string `json:"file_path"`
	} `json:"data"`
}

// NewClient builds a REST client for the chat server.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  logger,
	}
}

// FindByRequest looks up the room for a quote request. Absence is not an
// error: the result is (nil, nil) so callers can lazily create the room.
func (c *Client) FindByRequest(ctx context.Context, requestID int64) (*chat.Room, error) {
	var room chat.Room
	status, err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/chat/rooms/by-request/%d", requestID), nil, &room)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("rooms: find by request %d: status %d", requestID, status)
	}
	return &room, nil
}

// Create makes a new room for the request/expert pair.
func (c *Client) Create(ctx context.Context, requestID int64, expertID string) (*chat.Room, error) {
	body := map[string]any{"request_id": requestID, "expert_id": expertID}
	var room chat.Room
	status, err := c.doJSON(ctx, http.MethodPost, "/api/v1/chat/rooms", body, &room)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, fmt.Errorf("rooms: create for request %d: status %d", requestID, status)
	}
	return &room, nil
}

// Messages fetches room history, oldest first.
func (c *Client) Messages(ctx context.Context, roomID int64) ([]chat.Message, error) {
	var payload struct {
		Items []chat.Message `json:"items"`
	}
	status, err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/api/v1/chat/rooms/%d/messages", roomID), nil, &payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("rooms: messages for room %d: status %d", roomID, status)
	}
	return payload.Items, nil
}

// UpdateLastMessage pushes the room-list summary after a send.
func (c *Client) UpdateLastMessage(ctx context.Context, roomID int64, text string, at time.Time) error {
	body := map[string]any{"last_message": text, "last_message_at": at}
	status, err := c.doJSON(ctx, http.MethodPatch,
		fmt.Sprintf("/api/v1/chat/rooms/%d/last-message", roomID), body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("rooms: update last message for room %d: status %d", roomID, status)
	}
	return nil
}

// UpdateUnreadCount resets or sets the unread counter for the room.
func (c *Client) UpdateUnreadCount(ctx context.Context, roomID int64, count int) error {
	body := map[string]any{"unread_count": count}
	status, err := c.doJSON(ctx, http.MethodPatch,
		fmt.Sprintf("/api/v1/chat/rooms/%d/unread", roomID), body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("rooms: update unread for room %d: status %d", roomID, status)
	}
	return nil
}

// Upload stores an attachment and returns its served path.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader, contentType string) (string, error) {
	if content == nil {
		return "", errors.New("rooms: upload content is required")
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("rooms: build upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("rooms: read upload: %w", err)
	}
	if contentType != "" {
		if err := writer.WriteField("content_type", contentType); err != nil {
			return "", fmt.Errorf("rooms: build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("rooms: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/uploads", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("rooms: upload: %w", err)
	}
	defer resp.Body.Close()

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("rooms: decode upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !decoded.Success {
		if decoded.Error != "" {
			return "", fmt.Errorf("rooms: upload rejected: %s", decoded.Error)
		}
		return "", fmt.Errorf("rooms: upload rejected: status %d", resp.StatusCode)
	}
	return decoded.Data.FilePath, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("rooms: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rooms: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("rooms: decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

var _ session.RoomAPI = (*Client)(nil)
