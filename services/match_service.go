package services

import (
	"context"
	"net/http"
	"strings"

	"tripmate-server/models"
	"tripmate-server/store"
	"tripmate-server/utils/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MatchService suggests travel companions by preference-category overlap.
type MatchService struct {
	store *store.Store
}

func NewMatchService(st *store.Store) *MatchService {
	return &MatchService{store: st}
}

// MatchTravelers returns the user IDs of other group travelers sharing at
// least min(3, n) travel categories with the caller, where n is the size of
// the caller's own category list. Callers who have not opted into group
// travel get a validation error.
func (s *MatchService) MatchTravelers(ctx context.Context, userID string) ([]string, error) {
	var own models.UserPreferences
	err := s.store.Preferences().FindOne(ctx, bson.M{"_id": userID}).Decode(&own)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrNotFound
		}
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}

	if !containsFold(own.TravelStyles, "Group") {
		return nil, errors.NewAPIError("NOT_GROUP_TRAVELER", "You have not selected group travel in your preferences", http.StatusBadRequest)
	}

	required := len(own.TravelCategories)
	if required > 3 {
		required = 3
	}

	cursor, err := s.store.Preferences().Find(ctx, bson.M{"_id": bson.M{"$ne": userID}})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}
	defer cursor.Close(ctx)

	var candidates []models.UserPreferences
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable.Code, errors.ErrStoreUnavailable.Message, errors.ErrStoreUnavailable.Status)
	}

	matches := make([]string, 0)
	for _, candidate := range candidates {
		if sharedCategories(own.TravelCategories, candidate.TravelCategories) >= required {
			matches = append(matches, candidate.UserID)
		}
	}
	return matches, nil
}

// sharedCategories counts distinct categories present in both lists,
// case-insensitive.
func sharedCategories(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, c := range a {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = true
		}
	}
	shared := 0
	seen := make(map[string]bool, len(b))
	for _, c := range b {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" && set[c] && !seen[c] {
			seen[c] = true
			shared++
		}
	}
	return shared
}

func containsFold(list []string, want string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
