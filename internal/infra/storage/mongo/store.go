package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quotechat/internal/domain/chat"
)

// Store persists rooms and messages. Ids come from a counters collection so
// they are positive and monotonically increasing across the deployment.
type Store struct {
	rooms    *mongo.Collection
	messages *mongo.Collection
	counters *mongo.Collection
}

// NewStore builds a Store over the chat collections.
func NewStore(db *mongo.Database) *Store {
	return &Store{
		rooms:    db.Collection("chat_rooms"),
		messages: db.Collection("chat_messages"),
		counters: db.Collection("counters"),
	}
}

// EnsureIndexes creates the lookup indexes the chat queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "request_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: room index: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: message index: %w", err)
	}
	return nil
}

func (s *Store) FindRoomByRequest(ctx context.Context, requestID int64) (*chat.Room, error) {
	var room chat.Room
	err := s.rooms.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID int64) (*chat.Room, error) {
	var room chat.Room
	err := s.rooms.FindOne(ctx, bson.M{"room_id": roomID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Store) CreateRoom(ctx context.Context, requestID int64, expertID, customerID string, now time.Time) (*chat.Room, error) {
	id, err := s.nextID(ctx, "chat_rooms")
	if err != nil {
		return nil, err
	}
	room := chat.Room{
		ID:         id,
		RequestID:  requestID,
		ExpertID:   expertID,
		CustomerID: customerID,
		CreatedAt:  now.UTC(),
	}
	if _, err := s.rooms.InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost a create race; the existing room wins.
			return s.FindRoomByRequest(ctx, requestID)
		}
		return nil, err
	}
	return &room, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID int64) ([]chat.Message, error) {
	cursor, err := s.messages.Find(ctx, bson.M{"room_id": roomID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "message_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := make([]chat.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := msg.Validate(); err != nil {
		return chat.Message{}, err
	}
	id, err := s.nextID(ctx, "chat_messages")
	if err != nil {
		return chat.Message{}, err
	}
	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *Store) MarkReadUpTo(ctx context.Context, roomID, messageID int64) (int64, error) {
	var target chat.Message
	err := s.messages.FindOne(ctx, bson.M{"room_id": roomID, "message_id": messageID}).Decode(&target)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, chat.ErrMessageNotFound
	}
	if err != nil {
		return 0, err
	}
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"room_id": roomID, "is_read": false, "created_at": bson.M{"$lte": target.CreatedAt}},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *Store) MarkAllRead(ctx context.Context, roomID int64) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"room_id": roomID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *Store) SetLastMessage(ctx context.Context, roomID int64, text string, at time.Time) error {
	res, err := s.rooms.UpdateOne(ctx, bson.M{"room_id": roomID},
		bson.M{"$set": bson.M{"last_message": text, "last_message_at": at.UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrRoomNotFound
	}
	return nil
}

func (s *Store) SetUnreadCount(ctx context.Context, roomID int64, count int) error {
	res, err := s.rooms.UpdateOne(ctx, bson.M{"room_id": roomID},
		bson.M{"$set": bson.M{"unread_count": count}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrRoomNotFound
	}
	return nil
}

func (s *Store) IncrementUnread(ctx context.Context, roomID int64) error {
	res, err := s.rooms.UpdateOne(ctx, bson.M{"room_id": roomID},
		bson.M{"$inc": bson.M{"unread_count": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrRoomNotFound
	}
	return nil
}

func (s *Store) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongo: next id for %s: %w", name, err)
	}
	return counter.Value, nil
}

var _ chat.Store = (*Store)(nil)
