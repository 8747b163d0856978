package services

import (
	"context"
	"log"
	"time"

	"tripmate-server/models"
	"tripmate-server/store"
	"tripmate-server/utils/errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// FriendService owns friend requests and friendship membership records.
type FriendService struct {
	store       *store.Store
	userService *UserService
}

func NewFriendService(st *store.Store, userService *UserService) *FriendService {
	return &FriendService{store: st, userService: userService}
}

// SendRequest creates a pending friend request from fromID to toID.
// Re-sending after a rejection is allowed; only a pending duplicate for the
// same ordered pair is blocked.
func (s *FriendService) SendRequest(ctx context.Context, fromID, toID string) (*models.FriendRequest, error) {
	if fromID == toID {
		return nil, errors.ErrInvalidTarget
	}

	count, err := s.store.Friends().CountDocuments(ctx, bson.M{"ownerId": fromID, "friendId": toID})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	if count > 0 {
		return nil, errors.ErrAlreadyFriends
	}

	count, err = s.store.FriendRequests().CountDocuments(ctx, bson.M{
		"fromUserId": fromID,
		"toUserId":   toID,
		"status":     models.RequestPending,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	if count > 0 {
		return nil, errors.ErrDuplicateRequest
	}

	request := models.FriendRequest{
		ID:         uuid.New().String(),
		FromUserID: fromID,
		ToUserID:   toID,
		Status:     models.RequestPending,
		CreatedAt:  time.Now(),
	}
	_, err = s.store.FriendRequests().InsertOne(ctx, request)
	if err != nil {
		// The partial unique index catches the race where two sends for the
		// same pair pass the count check concurrently.
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.ErrDuplicateRequest
		}
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to send friend request", errors.ErrInternal.Status)
	}

	log.Printf("Friend request %s sent from %s to %s", request.ID, fromID, toID)
	return &request, nil
}

// RespondToRequest transitions a pending request to accepted or rejected.
// The transition only fires if the request is still pending, so responding
// twice (a double-tap accept) fails with NotFound instead of duplicating
// membership records. On accept, the status update and both membership
// records commit in a single transaction.
func (s *FriendService) RespondToRequest(ctx context.Context, requestID string, accept bool) error {
	status := models.RequestRejected
	if accept {
		status = models.RequestAccepted
	}

	return s.store.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var request models.FriendRequest
		err := s.store.FriendRequests().FindOneAndUpdate(sessCtx,
			bson.M{"_id": requestID, "status": models.RequestPending},
			bson.M{"$set": bson.M{"status": status}},
		).Decode(&request)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				return errors.ErrNotFound
			}
			return errors.Wrap(err, "DB_ERROR", "Failed to update friend request", errors.ErrInternal.Status)
		}

		if !accept {
			return nil
		}

		now := time.Now()
		entries := []interface{}{
			models.FriendEntry{ID: uuid.New().String(), OwnerID: request.ToUserID, FriendID: request.FromUserID, AddedAt: now},
			models.FriendEntry{ID: uuid.New().String(), OwnerID: request.FromUserID, FriendID: request.ToUserID, AddedAt: now},
		}
		if _, err := s.store.Friends().InsertMany(sessCtx, entries); err != nil {
			return errors.Wrap(err, "DB_ERROR", "Failed to create friendship records", errors.ErrInternal.Status)
		}

		log.Printf("Friend request %s accepted: %s <-> %s", requestID, request.FromUserID, request.ToUserID)
		return nil
	})
}

// ListIncomingRequests returns the pending requests addressed to userID,
// each enriched with the sender's display name. A missing sender record
// resolves to "Unknown User".
func (s *FriendService) ListIncomingRequests(ctx context.Context, userID string) ([]models.IncomingRequest, error) {
	cursor, err := s.store.FriendRequests().Find(ctx, bson.M{
		"toUserId": userID,
		"status":   models.RequestPending,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var requests []models.FriendRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}

	incoming := make([]models.IncomingRequest, 0, len(requests))
	for _, request := range requests {
		fullName := "Unknown User"
		sender, err := s.userService.GetUser(ctx, request.FromUserID)
		if err != nil {
			log.Printf("No user record for request sender %s: %v", request.FromUserID, err)
		} else if sender.FullName != "" {
			fullName = sender.FullName
		}
		incoming = append(incoming, models.IncomingRequest{FriendRequest: request, FromFullName: fullName})
	}
	return incoming, nil
}

// SubscribeIncomingRequests delivers the current pending-request list and
// re-delivers it whenever the friendRequests collection changes. The caller
// owns the subscription and must call Unsubscribe.
func (s *FriendService) SubscribeIncomingRequests(ctx context.Context, userID string) (<-chan []models.IncomingRequest, *store.Subscription, error) {
	updates := make(chan []models.IncomingRequest, 1)
	sub, err := store.WatchQuery(ctx, s.store.FriendRequests(), func(ctx context.Context) error {
		incoming, err := s.ListIncomingRequests(ctx, userID)
		if err != nil {
			return err
		}
		deliver(updates, incoming)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updates, sub, nil
}

// ListFriends returns the peer IDs in userID's membership list.
func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]string, error) {
	cursor, err := s.store.Friends().Find(ctx, bson.M{"ownerId": userID})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var entries []models.FriendEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}

	friends := make([]string, 0, len(entries))
	for _, entry := range entries {
		friends = append(friends, entry.FriendID)
	}
	return friends, nil
}

// SubscribeFriends is the live variant of ListFriends.
func (s *FriendService) SubscribeFriends(ctx context.Context, userID string) (<-chan []string, *store.Subscription, error) {
	updates := make(chan []string, 1)
	sub, err := store.WatchQuery(ctx, s.store.Friends(), func(ctx context.Context) error {
		friends, err := s.ListFriends(ctx, userID)
		if err != nil {
			return err
		}
		deliver(updates, friends)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updates, sub, nil
}

// FriendCount backs friends-type goals.
func (s *FriendService) FriendCount(ctx context.Context, userID string) (int, error) {
	count, err := s.store.Friends().CountDocuments(ctx, bson.M{"ownerId": userID})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return int(count), nil
}
