package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagePending(t *testing.T) {
	assert.True(t, Message{ID: -1}.Pending())
	assert.False(t, Message{ID: 0}.Pending())
	assert.False(t, Message{ID: 501}.Pending())
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{
			name: "valid text message",
			msg:  Message{SenderID: "u1", SenderType: SenderWeb, Text: "hi"},
		},
		{
			name: "valid file message",
			msg:  Message{SenderID: "u1", SenderType: SenderExpert, FilePath: "/files/a.png"},
		},
		{
			name:    "missing sender",
			msg:     Message{SenderType: SenderWeb, Text: "hi"},
			wantErr: true,
		},
		{
			name:    "unknown sender type",
			msg:     Message{SenderID: "u1", SenderType: "ADMIN", Text: "hi"},
			wantErr: true,
		},
		{
			name:    "no content",
			msg:     Message{SenderID: "u1", SenderType: SenderWeb, Text: "   "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessageSameContent(t *testing.T) {
	base := Message{SenderType: SenderWeb, Text: "hello"}

	assert.True(t, base.SameContent(Message{SenderType: SenderWeb, Text: "hello"}))
	assert.True(t, base.SameContent(Message{SenderType: SenderWeb, Text: "  hello  "}))
	assert.False(t, base.SameContent(Message{SenderType: SenderExpert, Text: "hello"}))
	assert.False(t, base.SameContent(Message{SenderType: SenderWeb, Text: "hello!"}))
	assert.False(t, base.SameContent(Message{SenderType: SenderWeb, Text: "hello", FilePath: "/f"}))
}

func TestSortByCreatedAt(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []Message{
		{ID: 3, CreatedAt: base.Add(2 * time.Minute)},
		{ID: -5, CreatedAt: base.Add(time.Minute)},
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base.Add(time.Minute)},
	}

	SortByCreatedAt(messages)

	got := make([]int64, 0, len(messages))
	for _, m := range messages {
		got = append(got, m.ID)
	}
	// Equal timestamps fall back to id order.
	assert.Equal(t, []int64{1, -5, 2, 3}, got)
}

func TestReadUpTo(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []Message{
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base.Add(time.Minute), IsRead: true},
		{ID: 3, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, CreatedAt: base.Add(3 * time.Minute)},
	}

	t.Run("marks unread prefix", func(t *testing.T) {
		ids := ReadUpTo(messages, 3)
		assert.Equal(t, []int64{1, 3}, ids)
	})

	t.Run("target itself suffices", func(t *testing.T) {
		ids := ReadUpTo(messages, 1)
		assert.Equal(t, []int64{1}, ids)
	})

	t.Run("unknown target is empty", func(t *testing.T) {
		assert.Nil(t, ReadUpTo(messages, 99))
	})

	t.Run("later messages untouched", func(t *testing.T) {
		ids := ReadUpTo(messages, 3)
		assert.NotContains(t, ids, int64(4))
	})
}

func TestMessageTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"seconds", now.Add(-30 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
		{"days", now.Add(-50 * time.Hour), "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message{CreatedAt: tt.at}
			assert.Equal(t, tt.want, m.TimeAgo(now))
		})
	}
}

func TestRoomParticipants(t *testing.T) {
	room := Room{ID: 7, ExpertID: "E1", CustomerID: "C1"}

	assert.True(t, room.Participant("E1"))
	assert.True(t, room.Participant("C1"))
	assert.False(t, room.Participant("X9"))
	assert.False(t, room.Participant(""))

	assert.Equal(t, "E1", room.PeerOf("C1"))
	assert.Equal(t, "C1", room.PeerOf("E1"))
}

func TestMessageValidateSentinel(t *testing.T) {
	err := Message{SenderID: "u1", SenderType: SenderWeb}.Validate()
	require.ErrorIs(t, err, ErrEmptyMessage)
}
