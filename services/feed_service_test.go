package services

import (
	"testing"
	"time"

	"tripmate-server/models"

	"github.com/google/go-cmp/cmp"
)

func feedPost(id string, createdAt time.Time, categories ...string) models.Post {
	return models.Post{ID: id, UserID: "author", Categories: categories, CreatedAt: createdAt}
}

func postIDs(posts []models.Post) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestRankPostsPreferredCategoriesFirst(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		feedPost("P1", base.Add(10*time.Minute), "Temples"),
		feedPost("P2", base.Add(20*time.Minute), "Beaches"),
		feedPost("P3", base.Add(5*time.Minute), "Temples"),
	}

	got := postIDs(RankPosts(posts, []string{"Temples"}))
	// Both Temples posts first, recent first between themselves; P2 last
	// despite being newest since it scores 0.
	want := []string{"P1", "P3", "P2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RankPosts order mismatch (-want +got):\n%s", diff)
	}
}

func TestRankPostsNoPreferencesIsPureRecency(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		feedPost("P1", base.Add(10*time.Minute), "Temples"),
		feedPost("P2", base.Add(20*time.Minute), "Beaches"),
		feedPost("P3", base.Add(5*time.Minute), "Temples"),
	}

	got := postIDs(RankPosts(posts, nil))
	want := []string{"P2", "P1", "P3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RankPosts order mismatch (-want +got):\n%s", diff)
	}
}

func TestRankPostsDeterministic(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		feedPost("A", base.Add(1*time.Minute), "Beaches"),
		feedPost("B", base.Add(2*time.Minute), "Temples", "Beaches"),
		feedPost("C", base.Add(3*time.Minute)),
		feedPost("D", base.Add(2*time.Minute), "Temples"),
	}
	prefs := []string{"Temples", "Beaches"}

	first := postIDs(RankPosts(posts, prefs))
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, postIDs(RankPosts(posts, prefs))); diff != "" {
			t.Fatalf("RankPosts not deterministic on run %d (-first +now):\n%s", i, diff)
		}
	}
}

func TestRankPostsDoesNotMutateInput(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		feedPost("A", base.Add(1*time.Minute), "Temples"),
		feedPost("B", base.Add(2*time.Minute), "Beaches"),
	}
	RankPosts(posts, []string{"Temples"})
	if posts[0].ID != "A" || posts[1].ID != "B" {
		t.Error("RankPosts reordered its input slice")
	}
}

func TestRankPostsSynonymMapping(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		feedPost("old-culture", base.Add(1*time.Minute), "Culture"),
		feedPost("new-beaches", base.Add(10*time.Minute), "Beaches"),
	}

	// "Colonial Towns" maps to "Culture", so the culture post ranks first
	// even though it is older.
	got := postIDs(RankPosts(posts, []string{"Colonial Towns"}))
	want := []string{"old-culture", "new-beaches"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RankPosts order mismatch (-want +got):\n%s", diff)
	}
}

func TestRankPostsMalformedTimestampSortsOldest(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		feedPost("future", time.Now().Add(48*time.Hour)),
		feedPost("zero", time.Time{}),
		feedPost("normal", base),
	}

	got := postIDs(RankPosts(posts, nil))
	if got[0] != "normal" {
		t.Errorf("expected normal post first, got order %v", got)
	}
}

func TestEffectiveCategories(t *testing.T) {
	got := EffectiveCategories([]string{"Colonial Towns", "Hill Stations", "Tea Plantations", "Temples", " "})
	want := map[string]bool{
		"culture":   true,
		"mountains": true,
		"nature":    true,
		"temples":   true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EffectiveCategories mismatch (-want +got):\n%s", diff)
	}

	if got := EffectiveCategories(nil); got != nil {
		t.Errorf("EffectiveCategories(nil) = %v, want nil", got)
	}
}
