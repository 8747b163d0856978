package services

import (
	"context"
	"strings"
	"time"

	"tripmate-server/models"
	"tripmate-server/store"
	"tripmate-server/utils/errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatService owns direct messages and the per-conversation unread counter.
type ChatService struct {
	store *store.Store
}

func NewChatService(st *store.Store) *ChatService {
	return &ChatService{store: st}
}

// SendMessage appends a message to the conversation between sender and peer.
func (s *ChatService) SendMessage(ctx context.Context, senderID, peerID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrInvalidInput
	}

	message := models.Message{
		ID:             uuid.New().String(),
		ConversationID: models.ConversationID(senderID, peerID),
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if _, err := s.store.Messages().InsertOne(ctx, message); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to send message", errors.ErrInternal.Status)
	}
	return &message, nil
}

// ListMessages returns the conversation between viewer and peer in
// chronological order.
func (s *ChatService) ListMessages(ctx context.Context, viewerID, peerID string) ([]models.Message, error) {
	convID := models.ConversationID(viewerID, peerID)
	opts := options.Find().SetSort(bson.M{"createdAt": 1})

	cursor, err := s.store.Messages().Find(ctx, bson.M{"conversationId": convID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return messages, nil
}

// UnreadCount counts messages from peer newer than the viewer's watermark.
// A viewer with no watermark counts everything the peer ever sent. The
// count is always recomputed from the store so it never drifts from missed
// update events.
func (s *ChatService) UnreadCount(ctx context.Context, viewerID, peerID string) (int, error) {
	watermark, err := s.watermark(ctx, viewerID, peerID)
	if err != nil {
		return 0, err
	}

	count, err := s.store.Messages().CountDocuments(ctx, bson.M{
		"conversationId": models.ConversationID(viewerID, peerID),
		"senderId":       peerID,
		"createdAt":      bson.M{"$gt": watermark},
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return int(count), nil
}

// OpenConversation stamps a fresh watermark for the viewer and returns the
// messages. A message arriving between the read and the watermark write is
// counted as seen.
func (s *ChatService) OpenConversation(ctx context.Context, viewerID, peerID string) ([]models.Message, error) {
	messages, err := s.ListMessages(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}

	seen := models.LastSeen{
		ID:       models.LastSeenID(viewerID, peerID),
		ViewerID: viewerID,
		PeerID:   peerID,
		SeenAt:   time.Now(),
	}
	_, err = s.store.LastSeen().ReplaceOne(ctx,
		bson.M{"_id": seen.ID},
		seen,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to update last-seen watermark", errors.ErrInternal.Status)
	}
	return messages, nil
}

// SubscribeMessages is the live variant of ListMessages for a mounted
// conversation screen.
func (s *ChatService) SubscribeMessages(ctx context.Context, viewerID, peerID string) (<-chan []models.Message, *store.Subscription, error) {
	updates := make(chan []models.Message, 1)
	sub, err := store.WatchQuery(ctx, s.store.Messages(), func(ctx context.Context) error {
		messages, err := s.ListMessages(ctx, viewerID, peerID)
		if err != nil {
			return err
		}
		deliver(updates, messages)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updates, sub, nil
}

func (s *ChatService) watermark(ctx context.Context, viewerID, peerID string) (time.Time, error) {
	var seen models.LastSeen
	err := s.store.LastSeen().FindOne(ctx, bson.M{"_id": models.LastSeenID(viewerID, peerID)}).Decode(&seen)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return time.Unix(0, 0).UTC(), nil
		}
		return time.Time{}, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return seen.SeenAt, nil
}
