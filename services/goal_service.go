package services

import (
	"context"
	"log"
	"time"

	"tripmate-server/models"
	"tripmate-server/store"
	"tripmate-server/utils/errors"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CompletionBonus is the reward added to a user's points when a goal
// completes.
const CompletionBonus = 50

const leaderboardKey = "leaderboard:points"

// Completion signals that a goal just flipped to completed. Emitted once
// per goal on the subscription's completions channel.
type Completion struct {
	GoalID   string `json:"goal_id"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Target   int    `json:"target"`
}

// GoalService recomputes goal progress over the viewer's content events and
// awards completion bonuses.
type GoalService struct {
	store         *store.Store
	friendService *FriendService
	userService   *UserService
	redisClient   *redis.Client
}

func NewGoalService(st *store.Store, friendService *FriendService, userService *UserService, redisClient *redis.Client) *GoalService {
	return &GoalService{
		store:         st,
		friendService: friendService,
		userService:   userService,
		redisClient:   redisClient,
	}
}

// ActiveGoals returns the user's goals that still take progress updates:
// not completed, not expired.
func (s *GoalService) ActiveGoals(ctx context.Context, userID string) ([]models.Goal, error) {
	cursor, err := s.store.Goals().Find(ctx, bson.M{
		"userId":    userID,
		"completed": false,
		"expiresAt": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var goals []models.Goal
	if err := cursor.All(ctx, &goals); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return goals, nil
}

// SubscribeProgress watches the viewer's own posts and recomputes every
// active goal on each delivery. Completions land on the returned channel.
func (s *GoalService) SubscribeProgress(ctx context.Context, userID string) (<-chan Completion, *store.Subscription, error) {
	completions := make(chan Completion, 16)
	sub, err := store.WatchQuery(ctx, s.store.Posts(), func(ctx context.Context) error {
		return s.Recompute(ctx, userID, completions)
	})
	if err != nil {
		return nil, nil, err
	}
	return completions, sub, nil
}

// Recompute evaluates every active goal for userID once. Malformed goal
// records are logged and skipped; the rest of the batch continues. If
// completions is non-nil, newly completed goals are signalled on it.
func (s *GoalService) Recompute(ctx context.Context, userID string, completions chan<- Completion) error {
	goals, err := s.ActiveGoals(ctx, userID)
	if err != nil {
		return err
	}
	if len(goals) == 0 {
		return nil
	}

	ownPosts, err := s.ownPosts(ctx, userID)
	if err != nil {
		return err
	}

	// Fetched lazily: most goal batches have no likes or friends goals.
	var likedPosts []models.Post
	likedLoaded := false
	friendCount := -1

	now := time.Now()
	for _, goal := range goals {
		// A goal can expire between the store query and this pass.
		if !goal.Active(now) {
			continue
		}
		switch goal.NormalizedType() {
		case models.GoalLikes:
			if !likedLoaded {
				likedPosts, err = s.likedPosts(ctx, userID)
				if err != nil {
					return err
				}
				likedLoaded = true
			}
		case models.GoalFriends:
			if friendCount < 0 {
				friendCount, err = s.friendService.FriendCount(ctx, userID)
				if err != nil {
					return err
				}
			}
		}

		progress, err := goalProgress(&goal, ownPosts, likedPosts, friendCount)
		if err != nil {
			log.Printf("Skipping malformed goal %s: %v", goal.ID, err)
			continue
		}
		if progress == goal.Progress {
			continue
		}

		if err := s.persistProgress(ctx, &goal, progress, completions); err != nil {
			log.Printf("Failed to persist progress for goal %s: %v", goal.ID, err)
		}
	}
	return nil
}

// goalProgress computes a single goal's progress from pre-fetched data.
// Returns ErrMalformedRecord for goals missing required fields.
func goalProgress(goal *models.Goal, ownPosts, likedPosts []models.Post, friendCount int) (int, error) {
	switch goal.NormalizedType() {
	case models.GoalPostCount:
		if goal.Category == "" {
			return 0, errors.ErrMalformedRecord
		}
		floor := goal.CreatedAt
		progress := 0
		for _, post := range ownPosts {
			if post.CreatedAt.Before(floor) {
				continue
			}
			if post.HasCategory(goal.Category) {
				progress++
			}
		}
		return progress, nil

	case models.GoalLikes:
		if goal.Category == "" {
			return 0, errors.ErrMalformedRecord
		}
		progress := 0
		for _, post := range likedPosts {
			if post.HasCategory(goal.Category) {
				progress++
			}
		}
		return progress, nil

	case models.GoalFriends:
		// Category is ignored for friends goals.
		return friendCount, nil

	case "":
		return 0, errors.ErrMalformedRecord

	default:
		return 0, errors.Wrap(errors.ErrMalformedRecord, errors.ErrMalformedRecord.Code,
			"Unknown goal type "+goal.Type, errors.ErrMalformedRecord.Status)
	}
}

// persistProgress writes the new progress and, when the goal crosses its
// target, flips completed and awards the bonus. The completed:false guard
// in the filter makes the flip check-and-act atomic, so the flag never
// reverts and the bonus is paid at most once per goal.
func (s *GoalService) persistProgress(ctx context.Context, goal *models.Goal, progress int, completions chan<- Completion) error {
	completed := progress >= goal.Target

	result, err := s.store.Goals().UpdateOne(ctx,
		bson.M{"_id": goal.ID, "completed": false},
		bson.M{"$set": bson.M{
			"progress":    progress,
			"completed":   completed,
			"lastUpdated": time.Now(),
		}},
	)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to update goal", errors.ErrInternal.Status)
	}
	if result.ModifiedCount == 0 || !completed {
		return nil
	}

	log.Printf("Goal %s completed for user %s, awarding %d points", goal.ID, goal.UserID, CompletionBonus)
	if err := s.awardBonus(ctx, goal.UserID); err != nil {
		return err
	}

	if completions != nil {
		select {
		case completions <- Completion{
			GoalID:   goal.ID,
			Category: goal.Category,
			Type:     goal.NormalizedType(),
			Target:   goal.Target,
		}:
		default:
			log.Printf("Completion signal for goal %s dropped: channel full", goal.ID)
		}
	}
	return nil
}

func (s *GoalService) awardBonus(ctx context.Context, userID string) error {
	_, err := s.store.Users().UpdateOne(ctx,
		bson.M{"public_id": userID},
		bson.M{"$inc": bson.M{"points": CompletionBonus}},
	)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to award points", errors.ErrInternal.Status)
	}

	s.userService.InvalidateUser(ctx, userID)

	if err := s.redisClient.ZIncrBy(ctx, leaderboardKey, CompletionBonus, userID).Err(); err != nil {
		log.Printf("Failed to update leaderboard for user %s: %v", userID, err)
	}
	return nil
}

// Leaderboard returns users ranked by reward points, highest first. Served
// from the Redis sorted set when populated, rebuilt from MongoDB otherwise.
func (s *GoalService) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	scores, err := s.redisClient.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		log.Printf("Leaderboard read from Redis failed, falling back to MongoDB: %v", err)
	}
	if len(scores) > 0 {
		entries := make([]models.LeaderboardEntry, 0, len(scores))
		for _, z := range scores {
			userID, ok := z.Member.(string)
			if !ok {
				continue
			}
			entry := models.LeaderboardEntry{UserID: userID, Points: int(z.Score), FullName: "Anonymous"}
			if user, err := s.userService.GetUser(ctx, userID); err == nil && user.FullName != "" {
				entry.FullName = user.FullName
			}
			entries = append(entries, entry)
		}
		return entries, nil
	}

	return s.leaderboardFromMongo(ctx, limit)
}

func (s *GoalService) leaderboardFromMongo(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	opts := options.Find().SetSort(bson.M{"points": -1}).SetLimit(int64(limit))
	cursor, err := s.store.Users().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}

	entries := make([]models.LeaderboardEntry, 0, len(users))
	for _, user := range users {
		name := user.FullName
		if name == "" {
			name = "Anonymous"
		}
		entries = append(entries, models.LeaderboardEntry{UserID: user.PublicID, FullName: name, Points: user.Points})

		// Repopulate the sorted set so the next read hits Redis.
		if err := s.redisClient.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(user.Points), Member: user.PublicID}).Err(); err != nil {
			log.Printf("Failed to repopulate leaderboard entry for %s: %v", user.PublicID, err)
		}
	}
	return entries, nil
}

func (s *GoalService) ownPosts(ctx context.Context, userID string) ([]models.Post, error) {
	cursor, err := s.store.Posts().Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return posts, nil
}

// likedPosts returns other users' posts the viewer has liked.
func (s *GoalService) likedPosts(ctx context.Context, userID string) ([]models.Post, error) {
	cursor, err := s.store.Posts().Find(ctx, bson.M{
		"likedBy": userID,
		"userId":  bson.M{"$ne": userID},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return posts, nil
}
