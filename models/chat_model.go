package models

import (
	"sort"
	"strings"
	"time"
)

type Message struct {
	ID             string    `json:"id" bson:"_id,omitempty"`
	ConversationID string    `json:"conversation_id" bson:"conversationId"`
	SenderID       string    `json:"sender_id" bson:"senderId"`
	Text           string    `json:"text" bson:"text"`
	CreatedAt      time.Time `json:"created_at" bson:"createdAt"`
}

// LastSeen is the watermark recorded when a viewer opens a conversation.
// Keyed by viewerId_peerId so each participant has their own watermark.
type LastSeen struct {
	ID       string    `json:"id" bson:"_id"`
	ViewerID string    `json:"viewer_id" bson:"viewerId"`
	PeerID   string    `json:"peer_id" bson:"peerId"`
	SeenAt   time.Time `json:"seen_at" bson:"seenAt"`
}

// ConversationID derives the shared chat key for two users: their IDs
// sorted lexicographically and joined with an underscore, so both sides
// compute the same key.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// LastSeenID is the composite key for a viewer's watermark on a peer.
func LastSeenID(viewerID, peerID string) string {
	return viewerID + "_" + peerID
}
