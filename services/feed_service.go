package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"tripmate-server/models"
	"tripmate-server/store"
	"tripmate-server/utils/errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// categorySynonyms folds niche preference terms from onboarding into the
// broader categories posts are tagged with. Unrecognized terms map to
// themselves. Keys and values are normalized lowercase.
var categorySynonyms = map[string]string{
	"colonial towns":          "culture",
	"cultural/heritage sites": "culture",
	"hill stations":           "mountains",
	"tea plantations":         "nature",
	"natural attractions":     "nature",
	"wildlife/national parks": "wildlife",
}

// FeedService ranks the post feed for a viewer and owns post mutations.
type FeedService struct {
	store *store.Store
}

func NewFeedService(st *store.Store) *FeedService {
	return &FeedService{store: st}
}

// EffectiveCategories maps viewer preference terms through the synonym
// table to the normalized category set used for scoring.
func EffectiveCategories(preferences []string) map[string]bool {
	var effective map[string]bool
	for _, pref := range preferences {
		pref = strings.ToLower(strings.TrimSpace(pref))
		if pref == "" {
			continue
		}
		if synonym, ok := categorySynonyms[pref]; ok {
			pref = synonym
		}
		if effective == nil {
			effective = make(map[string]bool)
		}
		effective[pref] = true
	}
	return effective
}

// RankPosts orders posts for a viewer with the given preferences. With no
// preferences the order is pure recency. Otherwise posts are scored by how
// many of their tags fall in the viewer's effective category set, sorted by
// score descending with recency as tiebreak. Pure function of its inputs:
// the same post set and preferences always produce the same order.
func RankPosts(posts []models.Post, preferences []string) []models.Post {
	now := time.Now()
	ranked := make([]models.Post, len(posts))
	copy(ranked, posts)

	effective := EffectiveCategories(preferences)
	if len(effective) == 0 {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].SortTime(now).After(ranked[j].SortTime(now))
		})
		return ranked
	}

	score := func(p *models.Post) int {
		n := 0
		for tag := range p.CategoryTags() {
			if effective[tag] {
				n++
			}
		}
		return n
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := score(&ranked[i]), score(&ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].SortTime(now).After(ranked[j].SortTime(now))
	})
	return ranked
}

// ListFeed returns all posts ranked for the viewer. A viewer without a
// preferences document gets a pure-recency feed.
func (s *FeedService) ListFeed(ctx context.Context, viewerID string) ([]models.Post, error) {
	preferences, err := s.viewerPreferences(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	posts, err := s.allPosts(ctx)
	if err != nil {
		return nil, err
	}
	return RankPosts(posts, preferences), nil
}

// SubscribeFeed delivers the ranked feed and re-ranks the full post set on
// every posts-collection change. Preferences are loaded once per
// subscription; a viewer whose preferences change must unsubscribe and
// subscribe again.
func (s *FeedService) SubscribeFeed(ctx context.Context, viewerID string) (<-chan []models.Post, *store.Subscription, error) {
	preferences, err := s.viewerPreferences(ctx, viewerID)
	if err != nil {
		return nil, nil, err
	}

	updates := make(chan []models.Post, 1)
	sub, err := store.WatchQuery(ctx, s.store.Posts(), func(ctx context.Context) error {
		posts, err := s.allPosts(ctx)
		if err != nil {
			return err
		}
		deliver(updates, RankPosts(posts, preferences))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updates, sub, nil
}

// CreatePost inserts a new post for the author.
func (s *FeedService) CreatePost(ctx context.Context, authorID, text, mediaURI, mediaKind string, categories []string) (*models.Post, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrInvalidInput
	}

	post := models.Post{
		ID:         uuid.New().String(),
		UserID:     authorID,
		Text:       text,
		MediaURI:   mediaURI,
		MediaKind:  mediaKind,
		Categories: categories,
		Likes:      0,
		LikedBy:    []string{},
		CreatedAt:  time.Now(),
	}
	if _, err := s.store.Posts().InsertOne(ctx, post); err != nil {
		return nil, errors.Wrap(err, "DB_ERROR", "Failed to create post", errors.ErrInternal.Status)
	}
	return &post, nil
}

// EditPost updates a post's body, media or categories. Author-only. Empty
// fields are left unchanged, so a request editing only categories does not
// blank the body.
func (s *FeedService) EditPost(ctx context.Context, authorID, postID, text, mediaURI string, categories []string) error {
	update := bson.M{}
	if strings.TrimSpace(text) != "" {
		update["text"] = text
	}
	if mediaURI != "" {
		update["mediaUri"] = mediaURI
	}
	if categories != nil {
		update["categories"] = categories
	}
	if len(update) == 0 {
		return errors.ErrInvalidInput
	}

	result, err := s.store.Posts().UpdateOne(ctx,
		bson.M{"_id": postID, "userId": authorID},
		bson.M{"$set": update},
	)
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to update post", errors.ErrInternal.Status)
	}
	if result.MatchedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// DeletePost removes a post. Author-only.
func (s *FeedService) DeletePost(ctx context.Context, authorID, postID string) error {
	result, err := s.store.Posts().DeleteOne(ctx, bson.M{"_id": postID, "userId": authorID})
	if err != nil {
		return errors.Wrap(err, "DB_ERROR", "Failed to delete post", errors.ErrInternal.Status)
	}
	if result.DeletedCount == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// ToggleLike flips the viewer's like on a post. The likedBy membership and
// the likes counter move together in one guarded update, so concurrent
// toggles from different viewers converge instead of losing updates.
func (s *FeedService) ToggleLike(ctx context.Context, viewerID, postID string) (liked bool, err error) {
	// Like: only if the viewer is not already in likedBy.
	result, err := s.store.Posts().UpdateOne(ctx,
		bson.M{"_id": postID, "likedBy": bson.M{"$ne": viewerID}},
		bson.M{"$addToSet": bson.M{"likedBy": viewerID}, "$inc": bson.M{"likes": 1}},
	)
	if err != nil {
		return false, errors.Wrap(err, "DB_ERROR", "Failed to like post", errors.ErrInternal.Status)
	}
	if result.ModifiedCount > 0 {
		return true, nil
	}

	// Already liked: unlike, guarded the same way.
	result, err = s.store.Posts().UpdateOne(ctx,
		bson.M{"_id": postID, "likedBy": viewerID},
		bson.M{"$pull": bson.M{"likedBy": viewerID}, "$inc": bson.M{"likes": -1}},
	)
	if err != nil {
		return false, errors.Wrap(err, "DB_ERROR", "Failed to unlike post", errors.ErrInternal.Status)
	}
	if result.ModifiedCount == 0 {
		return false, errors.ErrNotFound
	}
	return false, nil
}

func (s *FeedService) viewerPreferences(ctx context.Context, viewerID string) ([]string, error) {
	var preferences models.UserPreferences
	err := s.store.Preferences().FindOne(ctx, bson.M{"_id": viewerID}).Decode(&preferences)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	return preferences.TravelCategories, nil
}

func (s *FeedService) allPosts(ctx context.Context) ([]models.Post, error) {
	cursor, err := s.store.Posts().Find(ctx, bson.M{})
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
