package models

import (
	"strings"
	"time"
)

// Goal types. "post" and "post_count" both appear in stored data for the
// same semantic; NormalizedType maps both to GoalPostCount.
const (
	GoalPostCount = "post_count"
	GoalLikes     = "likes"
	GoalFriends   = "friends"
)

type Goal struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	UserID      string    `json:"user_id" bson:"userId"`
	Category    string    `json:"category" bson:"category"`
	Type        string    `json:"type" bson:"type"`
	Target      int       `json:"target" bson:"target"`
	Progress    int       `json:"progress" bson:"progress"`
	Completed   bool      `json:"completed" bson:"completed"`
	CreatedAt   time.Time `json:"created_at" bson:"createdAt"`
	ExpiresAt   time.Time `json:"expires_at" bson:"expiresAt"`
	LastUpdated time.Time `json:"last_updated,omitempty" bson:"lastUpdated,omitempty"`
}

// NormalizedType folds the legacy "post" spelling into "post_count".
func (g *Goal) NormalizedType() string {
	t := strings.ToLower(strings.TrimSpace(g.Type))
	if t == "post" {
		return GoalPostCount
	}
	return t
}

// Active reports whether the goal still takes progress updates: not yet
// completed and not expired. Expired goals keep their stored progress.
func (g *Goal) Active(now time.Time) bool {
	return !g.Completed && g.ExpiresAt.After(now)
}
