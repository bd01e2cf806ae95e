package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotechat/internal/domain/chat"
	"quotechat/internal/infra/storage/memory"
)

type recordingPublisher struct {
	mu    sync.Mutex
	rooms []chat.Room
}

func (p *recordingPublisher) PublishRoomUpdate(ctx context.Context, room chat.Room) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms = append(p.rooms, room)
	return nil
}

func (p *recordingPublisher) published() []chat.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.Room(nil), p.rooms...)
}

type hubFixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	server    *httptest.Server
	room      *chat.Room
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	store := memory.NewStore()
	room, err := store.CreateRoom(context.Background(), 42, "E1", "C1", time.Now())
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	hub := NewHub(store, publisher, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/ws/rooms/"), 10, 64)
		if err != nil {
			http.Error(w, "bad room id", http.StatusBadRequest)
			return
		}
		userID := r.Header.Get("X-User-ID")
		senderType := chat.SenderType(r.Header.Get("X-Sender-Type"))
		if err := hub.HandleConnection(w, r, id, userID, senderType); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return &hubFixture{store: store, publisher: publisher, server: srv, room: room}
}

func (f *hubFixture) dial(t *testing.T, userID string, senderType chat.SenderType) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/rooms/" + strconv.FormatInt(f.room.ID, 10)
	header := http.Header{}
	header.Set("X-User-ID", userID)
	header.Set("X-Sender-Type", string(senderType))
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitEvent reads frames until one of the wanted type arrives, skipping
// presence noise from other assertions.
func waitEvent(t *testing.T, conn *websocket.Conn, want chat.EventType) chat.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var ev chat.Event
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", want)
		if ev.Type == want {
			return ev
		}
	}
}

func TestConnectionRejectedForNonParticipant(t *testing.T) {
	f := newHubFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/rooms/" + strconv.FormatInt(f.room.ID, 10)
	header := http.Header{}
	header.Set("X-User-ID", "intruder")
	header.Set("X-Sender-Type", string(chat.SenderWeb))

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		conn.Close()
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
}

func TestConnectionRejectedForUnknownRoom(t *testing.T) {
	f := newHubFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/rooms/999"
	header := http.Header{}
	header.Set("X-User-ID", "C1")

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
}

func TestJoinIsBroadcastToTheRoom(t *testing.T) {
	f := newHubFixture(t)

	customer := f.dial(t, "C1", chat.SenderWeb)
	ev := waitEvent(t, customer, chat.EventJoin)
	assert.Equal(t, "C1", ev.UserID)

	f.dial(t, "E1", chat.SenderExpert)
	ev = waitEvent(t, customer, chat.EventJoin)
	assert.Equal(t, "E1", ev.UserID)
}

func TestMessagePersistedAndEchoedToSender(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	waitEvent(t, customer, chat.EventJoin)

	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventMessage, Text: "안녕하세요"}))

	// The sender's own broadcast copy is the confirmation.
	ev := waitEvent(t, customer, chat.EventMessage)
	require.NotNil(t, ev.Message)
	assert.Positive(t, ev.Message.ID)
	assert.Equal(t, "안녕하세요", ev.Message.Text)
	assert.Equal(t, "C1", ev.Message.SenderID)
	// Nobody else is connected, so the message lands unread.
	assert.False(t, ev.Message.IsRead)

	room, err := f.store.GetRoom(context.Background(), f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요", room.LastMessage)
	assert.Equal(t, 1, room.UnreadCount)
	assert.NotEmpty(t, f.publisher.published())
}

func TestMessageToPresentPeerLandsRead(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	expert := f.dial(t, "E1", chat.SenderExpert)
	waitEvent(t, customer, chat.EventJoin)
	waitEvent(t, expert, chat.EventJoin)

	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventMessage, Text: "견적 문의합니다"}))

	ev := waitEvent(t, expert, chat.EventMessage)
	require.NotNil(t, ev.Message)
	assert.True(t, ev.Message.IsRead)

	room, err := f.store.GetRoom(context.Background(), f.room.ID)
	require.NoError(t, err)
	assert.Zero(t, room.UnreadCount)
}

func TestBlankMessageDropped(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	waitEvent(t, customer, chat.EventJoin)

	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventMessage, Text: "   "}))
	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventMessage, Text: "real"}))

	ev := waitEvent(t, customer, chat.EventMessage)
	assert.Equal(t, "real", ev.Message.Text)

	msgs, err := f.store.ListMessages(context.Background(), f.room.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestFileMessageRelayed(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	expert := f.dial(t, "E1", chat.SenderExpert)
	waitEvent(t, customer, chat.EventJoin)
	waitEvent(t, expert, chat.EventJoin)

	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventFile, FilePath: "/files/chat/plan.pdf"}))

	ev := waitEvent(t, expert, chat.EventMessage)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "/files/chat/plan.pdf", ev.Message.FilePath)

	room, err := f.store.GetRoom(context.Background(), f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, "/files/chat/plan.pdf", room.LastMessage)
}

func TestTypingRelayedWithSenderIdentity(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	expert := f.dial(t, "E1", chat.SenderExpert)
	waitEvent(t, customer, chat.EventJoin)
	waitEvent(t, expert, chat.EventJoin)

	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventTyping, IsTyping: true}))

	ev := waitEvent(t, expert, chat.EventTyping)
	assert.Equal(t, "C1", ev.UserID)
	assert.True(t, ev.IsTyping)
}

func TestReadReceiptPersistedAndRelayed(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	waitEvent(t, customer, chat.EventJoin)

	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventMessage, Text: "one"}))
	waitEvent(t, customer, chat.EventMessage)
	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventMessage, Text: "two"}))
	second := waitEvent(t, customer, chat.EventMessage)

	expert := f.dial(t, "E1", chat.SenderExpert)
	waitEvent(t, expert, chat.EventJoin)
	require.NoError(t, expert.WriteJSON(chat.Event{Type: chat.EventRead, MessageID: second.Message.ID}))

	ev := waitEvent(t, customer, chat.EventRead)
	assert.Equal(t, second.Message.ID, ev.MessageID)
	assert.Equal(t, "E1", ev.UserID)

	msgs, err := f.store.ListMessages(context.Background(), f.room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsRead)
	assert.True(t, msgs[1].IsRead)
}

func TestUnknownFrameIgnored(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	waitEvent(t, customer, chat.EventJoin)

	require.NoError(t, customer.WriteJSON(chat.Event{Type: "BOGUS"}))
	require.NoError(t, customer.WriteJSON(chat.Event{Type: chat.EventMessage, Text: "still alive"}))

	ev := waitEvent(t, customer, chat.EventMessage)
	assert.Equal(t, "still alive", ev.Message.Text)
}

func TestBroadcastWhileClientDisconnects(t *testing.T) {
	store := memory.NewStore()
	room, err := store.CreateRoom(context.Background(), 42, "E1", "C1", time.Now())
	require.NoError(t, err)
	hub := NewHub(store, nil, nil)

	stable := &client{id: "stable", userID: "C1", senderType: chat.SenderWeb, roomID: room.ID, send: make(chan chat.Event, 1)}
	hub.register(stable)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					hub.broadcast(room.ID, chat.Event{Type: chat.EventTyping, RoomID: room.ID, UserID: "C1", IsTyping: true})
				}
			}
		}()
	}

	// Churn a client through the room while frames fan out; a send racing
	// the departing client's channel close would panic the broadcasters.
	for i := 0; i < 200; i++ {
		victim := &client{
			id:         strconv.Itoa(i),
			userID:     "E1",
			senderType: chat.SenderExpert,
			roomID:     room.ID,
			send:       make(chan chat.Event, 1),
		}
		hub.register(victim)
		hub.unregister(victim)
	}
	close(stop)
	wg.Wait()

	assert.False(t, hub.peerPresent(room.ID, "C1"))
}

func TestLeaveBroadcastOnDisconnect(t *testing.T) {
	f := newHubFixture(t)
	customer := f.dial(t, "C1", chat.SenderWeb)
	expert := f.dial(t, "E1", chat.SenderExpert)
	waitEvent(t, customer, chat.EventJoin)
	waitEvent(t, expert, chat.EventJoin)

	require.NoError(t, expert.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	expert.Close()

	ev := waitEvent(t, customer, chat.EventLeave)
	assert.Equal(t, "E1", ev.UserID)
}
