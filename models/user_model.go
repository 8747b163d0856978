package models

type User struct {
	ID             string `json:"id" bson:"_id,omitempty"`
	PublicID       string `json:"public_id" bson:"public_id"`
	FullName       string `json:"full_name" bson:"full_name"`
	Email          string `json:"email" bson:"email"`
	PasswordHash   string `json:"-" bson:"password_hash"`
	Points         int    `json:"points" bson:"points"`
	ProfilePicture string `json:"profile_picture,omitempty" bson:"profile_picture,omitempty"`
}

// UserPreferences is written once by the onboarding flow and read here for
// feed ranking and group matching. Keyed by the user's public ID.
type UserPreferences struct {
	UserID           string   `json:"user_id" bson:"_id"`
	TravelStyles     []string `json:"travel_styles" bson:"travel_styles"`
	TravelCategories []string `json:"travel_categories" bson:"travel_categories"`
	TripDurations    []string `json:"trip_durations" bson:"trip_durations"`
	SocialFeatures   []string `json:"social_features" bson:"social_features"`
}

type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Points   int    `json:"points"`
}
