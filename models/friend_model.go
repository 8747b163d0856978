package models

import "time"

// Friend request lifecycle states. Accepted and rejected are terminal.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

type FriendRequest struct {
	ID         string    `json:"id" bson:"_id,omitempty"`
	FromUserID string    `json:"from_user_id" bson:"fromUserId"`
	ToUserID   string    `json:"to_user_id" bson:"toUserId"`
	Status     string    `json:"status" bson:"status"`
	CreatedAt  time.Time `json:"created_at" bson:"createdAt"`
}

// IncomingRequest is a pending request enriched with the sender's display
// name for the requests screen.
type IncomingRequest struct {
	FriendRequest `bson:",inline"`
	FromFullName  string `json:"from_full_name" bson:"-"`
}

// FriendEntry is one half of a symmetric friendship, stored under its owner.
// A fully established friendship has an entry on both sides.
type FriendEntry struct {
	ID       string    `json:"id" bson:"_id,omitempty"`
	OwnerID  string    `json:"owner_id" bson:"ownerId"`
	FriendID string    `json:"friend_id" bson:"friendId"`
	AddedAt  time.Time `json:"added_at" bson:"addedAt"`
}
