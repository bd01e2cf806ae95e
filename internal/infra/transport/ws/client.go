// Package ws implements the realtime transport over a websocket connection,
// one logical connection per open room. Inbound frames are delivered as an
// ordered event stream; sends report synchronous acceptance only.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quotechat/internal/app/session"
	"quotechat/internal/domain/chat"
)

// ErrAlreadyConnected is returned when Connect is called on a live client.
var ErrAlreadyConnected = errors.New("ws: already connected")

// Config carries dial settings for the realtime endpoint.
type Config struct {
	// BaseURL is the websocket origin, e.g. ws://localhost:8080.
	BaseURL    string
	UserID     string
	SenderType chat.SenderType
	Token      string
	Logger     *slog.Logger
}

// Client dials the room websocket endpoint and pumps frames both ways.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	events  chan chat.Event
	connErr string
}

// NewClient builds a disconnected transport.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{cfg: cfg, dialer: websocket.DefaultDialer, logger: logger}
}

// Connect dials the endpoint for the given room and starts the read pump.
func (c *Client) Connect(ctx context.Context, roomID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	url := fmt.Sprintf("%s/ws/rooms/%d", strings.TrimRight(c.cfg.BaseURL, "/"), roomID)
	header := http.Header{}
	header.Set("X-User-ID", c.cfg.UserID)
	header.Set("X-Sender-Type", string(c.cfg.SenderType))
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.connErr = err.Error()
		return fmt.Errorf("ws: dial %s: %w", url, err)
	}

	c.conn = conn
	c.connErr = ""
	c.events = make(chan chat.Event, 32)
	go c.readPump(conn, c.events)
	c.logger.Info("realtime connected", "room_id", roomID)
	return nil
}

// Disconnect closes the connection; safe to call at any time. The event
// channel closes once the read pump drains.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
		conn.Close()
	}
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ConnectionError returns the last connection-level error string.
func (c *Client) ConnectionError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connErr
}

// Events exposes the inbound frame stream for the current connection.
func (c *Client) Events() <-chan chat.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// SendMessage dispatches a text message frame.
func (c *Client) SendMessage(text string) bool {
	return c.write(chat.Event{Type: chat.EventMessage, UserID: c.cfg.UserID, Text: text})
}

// SendFileMessage dispatches an attachment-reference frame.
func (c *Client) SendFileMessage(path string) bool {
	return c.write(chat.Event{Type: chat.EventFile, UserID: c.cfg.UserID, FilePath: path})
}

// SendTypingStatus signals composition state to the room.
func (c *Client) SendTypingStatus(isTyping bool) {
	c.write(chat.Event{Type: chat.EventTyping, UserID: c.cfg.UserID, IsTyping: isTyping})
}

func (c *Client) write(ev chat.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}
	if err := c.conn.WriteJSON(ev); err != nil {
		c.connErr = err.Error()
		c.logger.Warn("realtime write failed", "type", string(ev.Type), "error", err)
		return false
	}
	return true
}

// readPump decodes inbound frames until the connection dies. Malformed
// payloads are skipped rather than killing the stream; the server is trusted
// but not infallible.
func (c *Client) readPump(conn *websocket.Conn, events chan<- chat.Event) {
	defer close(events)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.connErr = err.Error()
				}
			}
			c.mu.Unlock()
			return
		}
		var ev chat.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.logger.Warn("skipping malformed frame", "error", err)
			continue
		}
		events <- ev
	}
}

func closeDeadline() time.Time {
	return time.Now().Add(time.Second)
}

var _ session.Transport = (*Client)(nil)
