// Package kafka publishes room summary changes for the marketplace room-list
// service (last message, unread count), keyed by room id so consumers see
// per-room updates in order.
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"quotechat/internal/domain/chat"
)

const roomUpdatedTopic = "chat.room.updated"

type roomUpdatedEvent struct {
	RoomID        int64     `json:"room_id"`
	RequestID     int64     `json:"request_id"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	At            time.Time `json:"at"`
}

type Producer struct {
	sync        sarama.SyncProducer
	topicPrefix string
}

func NewProducer(brokers []string, topicPrefix string, cfg *sarama.Config) (*Producer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Producer{sync: sync, topicPrefix: topicPrefix}, nil
}

// PublishRoomUpdate emits the room's current summary.
func (p *Producer) PublishRoomUpdate(ctx context.Context, room chat.Room) error {
	payload, err := json.Marshal(roomUpdatedEvent{
		RoomID:        room.ID,
		RequestID:     room.RequestID,
		LastMessage:   room.LastMessage,
		LastMessageAt: room.LastMessageAt,
		UnreadCount:   room.UnreadCount,
		At:            time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topicPrefix + roomUpdatedTopic,
		Key:   sarama.StringEncoder(strconv.FormatInt(room.ID, 10)),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err = p.sync.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
