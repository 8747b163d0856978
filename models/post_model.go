package models

import (
	"strings"
	"time"
)

type Post struct {
	ID       string `json:"id" bson:"_id,omitempty"`
	UserID   string `json:"user_id" bson:"userId"`
	Text     string `json:"text" bson:"text"`
	MediaURI string `json:"media_uri,omitempty" bson:"mediaUri,omitempty"`
	// "image" or "video"
	MediaKind string `json:"media_kind,omitempty" bson:"mediaKind,omitempty"`

	// Category tags exist in four legacy shapes. Older documents carry a
	// singular "category" or "tag" string, newer ones "categories" or "tags"
	// arrays. CategoryTags normalizes across all of them.
	Categories []string `json:"categories,omitempty" bson:"categories,omitempty"`
	Category   string   `json:"category,omitempty" bson:"category,omitempty"`
	Tag        string   `json:"tag,omitempty" bson:"tag,omitempty"`
	Tags       []string `json:"tags,omitempty" bson:"tags,omitempty"`

	Likes     int       `json:"likes" bson:"likes"`
	LikedBy   []string  `json:"liked_by" bson:"likedBy"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}

// CategoryTags returns the post's category tags as a lowercase, trimmed set.
// The four legacy shapes are checked in order (categories, category, tag,
// tags) and the first non-empty one wins. A post with no tags returns nil.
func (p *Post) CategoryTags() map[string]bool {
	if tags := normalizeTags(p.Categories); len(tags) > 0 {
		return tags
	}
	if tags := normalizeTags([]string{p.Category}); len(tags) > 0 {
		return tags
	}
	if tags := normalizeTags([]string{p.Tag}); len(tags) > 0 {
		return tags
	}
	return normalizeTags(p.Tags)
}

// HasCategory reports whether the post's tags, under any legacy shape,
// include the given category (case-insensitive, trimmed).
func (p *Post) HasCategory(category string) bool {
	want := strings.ToLower(strings.TrimSpace(category))
	if want == "" {
		return false
	}
	return p.CategoryTags()[want]
}

// SortTime is the timestamp the feed orders by. Future or missing creation
// times clamp to the epoch so broken documents sort as oldest.
func (p *Post) SortTime(now time.Time) time.Time {
	if p.CreatedAt.IsZero() || p.CreatedAt.After(now) {
		return time.Unix(0, 0).UTC()
	}
	return p.CreatedAt
}

func normalizeTags(raw []string) map[string]bool {
	var tags map[string]bool
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if tags == nil {
			tags = make(map[string]bool)
		}
		tags[t] = true
	}
	return tags
}
