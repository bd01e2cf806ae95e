package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"quotechat/internal/domain/chat"
)

var (
	// ErrNotAuthenticated is returned when chat is opened without identity.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrMissingContext is returned when the request or expert is unknown.
	ErrMissingContext = errors.New("session: request and expert are required")
	// ErrSessionClosed marks results that arrived after the session ended.
	ErrSessionClosed = errors.New("session: closed")
	// ErrNotConnected is returned for operations that need a live transport.
	ErrNotConnected = errors.New("session: transport not connected")
	// ErrUploadRejected wraps attachment upload failures.
	ErrUploadRejected = errors.New("session: upload rejected")
)

// Identity is the read-only capability supplied by the auth collaborator.
type Identity struct {
	IsAuthenticated bool
	UserID          string
	Token           string
}

// IdentityProvider yields the current user identity.
type IdentityProvider interface {
	Current() Identity
}

// IdentityFunc adapts a closure to IdentityProvider.
type IdentityFunc func() Identity

func (f IdentityFunc) Current() Identity { return f() }

// RoomAPI is the REST collaborator for room lifecycle, history and the
// summary fields owned by the room-list service.
type RoomAPI interface {
	FindByRequest(ctx context.Context, requestID int64) (*chat.Room, error)
	Create(ctx context.Context, requestID int64, expertID string) (*chat.Room, error)
	Messages(ctx context.Context, roomID int64) ([]chat.Message, error)
	UpdateLastMessage(ctx context.Context, roomID int64, text string, at time.Time) error
	UpdateUnreadCount(ctx context.Context, roomID int64, count int) error
	Upload(ctx context.Context, name string, content io.Reader, contentType string) (string, error)
}

// Transport is the persistent bidirectional channel scoped to one room.
// Sends report synchronous acceptance only, not delivery.
type Transport interface {
	Connect(ctx context.Context, roomID int64) error
	Disconnect()
	IsConnected() bool
	ConnectionError() string
	SendMessage(text string) bool
	SendFileMessage(path string) bool
	SendTypingStatus(isTyping bool)
	Events() <-chan chat.Event
}

// State tracks the room session lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

// Controller mediates between UI intents and the two external channels,
// reconciling optimistic sends against confirmations and driving the
// read-receipt cascade. All collaborators are injected; there is no ambient
// state, so tests substitute fakes freely.
type Controller struct {
	identity   IdentityProvider
	rooms      RoomAPI
	transport  Transport
	senderType chat.SenderType
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.Mutex
	state       State
	room        *chat.Room
	store       *MessageStore
	input       string
	selfTyping  bool
	peerTyping  bool
	uploading   bool
	lastError   string
	epoch       int
	localClock  int64
	callTimeout time.Duration
}

// Config carries the controller collaborators.
type Config struct {
	Identity   IdentityProvider
	Rooms      RoomAPI
	Transport  Transport
	SenderType chat.SenderType
	Logger     *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
	// CallTimeout bounds fire-and-forget summary updates.
	CallTimeout time.Duration
}

// NewController builds a closed session controller.
func NewController(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	senderType := cfg.SenderType
	if senderType == "" {
		senderType = chat.SenderWeb
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		identity:    cfg.Identity,
		rooms:       cfg.Rooms,
		transport:   cfg.Transport,
		senderType:  senderType,
		logger:      logger,
		now:         now,
		store:       NewMessageStore(),
		callTimeout: timeout,
	}
}

// Open resolves the room for the request (creating it on first contact),
// connects the realtime channel and seeds local history. On any failure the
// session falls back to closed with the error surfaced via LastError.
func (c *Controller) Open(ctx context.Context, requestID int64, expertID string) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return nil
	}
	id := c.identity.Current()
	if !id.IsAuthenticated || id.UserID == "" {
		c.lastError = ErrNotAuthenticated.Error()
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	if requestID <= 0 || strings.TrimSpace(expertID) == "" {
		c.lastError = ErrMissingContext.Error()
		c.mu.Unlock()
		return ErrMissingContext
	}
	c.state = StateOpening
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	room, err := c.resolveRoom(ctx, requestID, expertID)
	if err != nil {
		c.failOpen(epoch, err)
		return err
	}

	history, err := c.rooms.Messages(ctx, room.ID)
	if err != nil {
		// History is a convenience; an empty room still opens.
		c.logger.Warn("chat history load failed", "room_id", room.ID, "error", err)
		history = nil
	}

	if err := c.transport.Connect(ctx, room.ID); err != nil {
		c.failOpen(epoch, err)
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state != StateOpening {
		c.mu.Unlock()
		c.transport.Disconnect()
		return ErrSessionClosed
	}
	c.room = room
	c.store.Clear()
	for _, msg := range history {
		if err := c.store.Add(msg); err != nil {
			c.logger.Warn("dropping duplicate history message", "message_id", msg.ID)
		}
	}
	// The local user is looking at the room now.
	c.store.MarkAllRead()
	c.state = StateOpen
	c.lastError = ""
	events := c.transport.Events()
	c.mu.Unlock()

	go c.consume(events, epoch)
	c.logger.Info("chat opened", "room_id", room.ID, "request_id", requestID, "expert_id", expertID)
	return nil
}

// Close discards all room-scoped state and disconnects. Idempotent; results
// of operations still in flight for the old session are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	wasOpen := c.state != StateClosed
	c.state = StateClosed
	c.epoch++
	c.room = nil
	c.input = ""
	c.selfTyping = false
	c.peerTyping = false
	c.uploading = false
	c.store.Clear()
	c.mu.Unlock()

	if wasOpen {
		c.transport.Disconnect()
		c.logger.Info("chat closed")
	}
}

// Send dispatches the text over the realtime channel after inserting an
// optimistic local copy, so the sender sees the message with zero latency.
// Blank input, a closed session or a dead transport make it a no-op.
func (c *Controller) Send(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	c.mu.Lock()
	if c.state != StateOpen || c.room == nil || !c.transport.IsConnected() {
		c.mu.Unlock()
		return false
	}
	id := c.identity.Current()
	c.localClock++
	optimistic := chat.Message{
		ID:         -c.localClock,
		RoomID:     c.room.ID,
		SenderType: c.senderType,
		SenderID:   id.UserID,
		Text:       trimmed,
		IsRead:     false,
		CreatedAt:  c.now(),
	}
	if err := c.store.Add(optimistic); err != nil {
		c.mu.Unlock()
		c.logger.Error("optimistic insert failed", "error", err)
		return false
	}
	c.input = ""
	wasTyping := c.selfTyping
	c.selfTyping = false
	roomID := c.room.ID
	epoch := c.epoch
	c.mu.Unlock()

	if !c.transport.SendMessage(trimmed) {
		// Put the text back so the user does not lose it, and evict the
		// optimistic copy so a retry cannot leave an orphaned duplicate.
		c.mu.Lock()
		if c.epoch == epoch {
			c.input = text
			c.lastError = ErrNotConnected.Error()
			if err := c.store.Remove(optimistic.ID); err != nil {
				c.logger.Warn("stale optimistic message missing", "message_id", optimistic.ID)
			}
		}
		c.mu.Unlock()
		return false
	}
	if wasTyping {
		c.transport.SendTypingStatus(false)
	}
	go c.pushLastMessage(epoch, roomID, trimmed, optimistic.CreatedAt)
	return true
}

// Upload stores the attachment through the REST collaborator and dispatches
// a file-reference message. The upload error is surfaced to the caller; the
// session itself stays open.
func (c *Controller) Upload(ctx context.Context, name string, content io.Reader, contentType string) error {
	c.mu.Lock()
	if c.state != StateOpen || c.room == nil || !c.transport.IsConnected() {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.uploading = true
	epoch := c.epoch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.uploading = false
		c.mu.Unlock()
	}()

	path, err := c.rooms.Upload(ctx, name, content, contentType)
	if err != nil {
		c.setLastError(err.Error())
		return errors.Join(ErrUploadRejected, err)
	}

	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		return ErrSessionClosed
	}
	if !c.transport.SendFileMessage(path) {
		c.setLastError(ErrNotConnected.Error())
		return ErrNotConnected
	}
	return nil
}

// HandleTyping updates the pending input and signals composition state on
// the empty/non-empty edges only, so unchanged state never re-dispatches.
func (c *Controller) HandleTyping(text string) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.input = text
	composing := strings.TrimSpace(text) != ""
	edge := composing != c.selfTyping
	c.selfTyping = composing
	c.mu.Unlock()

	if edge {
		c.transport.SendTypingStatus(composing)
	}
}

// HandleKeyPress submits the pending input on Enter.
func (c *Controller) HandleKeyPress(key string) {
	if key != "Enter" {
		return
	}
	c.mu.Lock()
	text := c.input
	c.mu.Unlock()
	c.Send(text)
}

// IsOpen reports whether the session is fully open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateOpen
}

// Messages returns the chronological snapshot the UI renders.
func (c *Controller) Messages() []chat.Message {
	return c.store.Sorted()
}

// Input returns the pending compose text.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// PeerTyping reports whether the other participant is composing.
func (c *Controller) PeerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerTyping
}

// Uploading reports whether an attachment upload is in flight.
func (c *Controller) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}

// IsConnected mirrors the transport connection state.
func (c *Controller) IsConnected() bool {
	return c.transport.IsConnected()
}

// ConnectionError mirrors the transport error string, if any.
func (c *Controller) ConnectionError() string {
	return c.transport.ConnectionError()
}

// LastError returns the most recent surfaced session error.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Room returns a copy of the active room, if any.
func (c *Controller) Room() (chat.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return chat.Room{}, false
	}
	return *c.room, true
}

func (c *Controller) resolveRoom(ctx context.Context, requestID int64, expertID string) (*chat.Room, error) {
	room, err := c.rooms.FindByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if room != nil {
		return room, nil
	}
	return c.rooms.Create(ctx, requestID, expertID)
}

func (c *Controller) failOpen(epoch int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return
	}
	c.state = StateClosed
	c.lastError = err.Error()
	c.logger.Error("chat open failed", "error", err)
}

func (c *Controller) setLastError(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
}

// consume drains transport events for one session epoch. The channel closes
// on disconnect, which ends the loop; events observed after the epoch moved
// on belong to a closed session and are dropped.
func (c *Controller) consume(events <-chan chat.Event, epoch int) {
	for ev := range events {
		c.mu.Lock()
		if c.epoch != epoch || c.state != StateOpen {
			c.mu.Unlock()
			continue
		}
		c.handleEvent(ev)
		c.mu.Unlock()
	}
}

// handleEvent runs with the controller lock held.
func (c *Controller) handleEvent(ev chat.Event) {
	self := c.identity.Current().UserID
	switch ev.Type {
	case chat.EventMessage:
		if ev.Message == nil {
			return
		}
		c.handleInboundMessage(*ev.Message, self)
	case chat.EventTyping:
		// Self-echo never toggles the peer flag.
		if ev.UserID == self {
			return
		}
		c.peerTyping = ev.IsTyping
	case chat.EventRead:
		c.store.MarkReadUpTo(ev.MessageID)
	case chat.EventJoin:
		if ev.UserID == self {
			return
		}
		c.peerJoined()
	case chat.EventLeave:
		c.logger.Debug("peer left room", "user_id", ev.UserID)
	default:
		c.logger.Debug("ignoring unknown event", "type", string(ev.Type))
	}
}

func (c *Controller) handleInboundMessage(msg chat.Message, self string) {
	if msg.SenderID == self {
		// Confirmation echo of an optimistic send.
		if pending, ok := c.store.LatestPending(msg); ok {
			if err := c.store.Confirm(pending.ID, msg); err != nil {
				c.logger.Warn("confirm failed", "message_id", msg.ID, "error", err)
			}
		} else if err := c.store.Add(msg); err != nil {
			c.logger.Warn("duplicate confirmed message", "message_id", msg.ID)
		}
	} else {
		if err := c.store.Add(msg); err != nil {
			c.logger.Warn("duplicate inbound message", "message_id", msg.ID)
			return
		}
	}
	// A message arriving already read proves the peer has seen everything
	// chronologically before it as well.
	if msg.IsRead {
		c.store.MarkReadUpTo(msg.ID)
	}
}

// peerJoined treats presence as proof the peer now sees the conversation.
func (c *Controller) peerJoined() {
	c.peerTyping = false
	if c.store.MarkAllRead() == 0 {
		return
	}
	roomID := c.room.ID
	epoch := c.epoch
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
		defer cancel()
		if c.staleEpoch(epoch) {
			return
		}
		if err := c.rooms.UpdateUnreadCount(ctx, roomID, 0); err != nil {
			c.logger.Warn("unread reset failed", "room_id", roomID, "error", err)
		}
	}()
}

func (c *Controller) pushLastMessage(epoch int, roomID int64, text string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), c.callTimeout)
	defer cancel()
	if c.staleEpoch(epoch) {
		return
	}
	if err := c.rooms.UpdateLastMessage(ctx, roomID, text, at); err != nil {
		c.logger.Warn("last message update failed", "room_id", roomID, "error", err)
	}
}

func (c *Controller) staleEpoch(epoch int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != epoch
}
