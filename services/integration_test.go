package services

import (
	"context"
	"os"
	"testing"
	"time"

	"tripmate-server/models"
	"tripmate-server/store"
	"tripmate-server/utils/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// newTestServices connects to the MongoDB named by MONGODB_URI and returns
// fresh services on a dropped test database. Transactions used by the
// friend accept require the instance to run as a replica set.
func newTestServices(t *testing.T) (context.Context, *store.Store, *UserService, *FriendService, *FeedService, *ChatService, *GoalService) {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	st, err := store.New(ctx, uri, "tripmate_test")
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	_ = st.Users().Drop(ctx)
	_ = st.FriendRequests().Drop(ctx)
	_ = st.Friends().Drop(ctx)
	_ = st.Posts().Drop(ctx)
	_ = st.Goals().Drop(ctx)
	_ = st.Messages().Drop(ctx)
	_ = st.LastSeen().Drop(ctx)
	if err := st.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		// Cache and leaderboard writes degrade to log lines without Redis.
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr, DB: 9})

	userService := NewUserService(st, redisClient, "test-secret")
	friendService := NewFriendService(st, userService)
	feedService := NewFeedService(st)
	chatService := NewChatService(st)
	goalService := NewGoalService(st, friendService, userService, redisClient)
	return ctx, st, userService, friendService, feedService, chatService, goalService
}

func TestSendRequestDuplicatePrevention(t *testing.T) {
	ctx, st, _, friends, _, _, _ := newTestServices(t)

	if _, err := friends.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("first SendRequest failed: %v", err)
	}

	_, err := friends.SendRequest(ctx, "alice", "bob")
	apiErr, ok := err.(*errors.APIError)
	if !ok || apiErr.Code != errors.ErrDuplicateRequest.Code {
		t.Fatalf("second SendRequest error = %v, want %s", err, errors.ErrDuplicateRequest.Code)
	}

	count, err := st.FriendRequests().CountDocuments(ctx, bson.M{"fromUserId": "alice", "toUserId": "bob"})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if count != 1 {
		t.Errorf("request count = %d, want exactly 1", count)
	}
}

func TestSendRequestValidation(t *testing.T) {
	ctx, _, _, friends, _, _, _ := newTestServices(t)

	_, err := friends.SendRequest(ctx, "alice", "alice")
	apiErr, ok := err.(*errors.APIError)
	if !ok || apiErr.Code != errors.ErrInvalidTarget.Code {
		t.Fatalf("self request error = %v, want %s", err, errors.ErrInvalidTarget.Code)
	}
}

func TestAcceptRequestSymmetry(t *testing.T) {
	ctx, _, _, friends, _, _, _ := newTestServices(t)

	request, err := friends.SendRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if err := friends.RespondToRequest(ctx, request.ID, true); err != nil {
		t.Fatalf("RespondToRequest failed: %v", err)
	}

	aliceFriends, err := friends.ListFriends(ctx, "alice")
	if err != nil {
		t.Fatalf("ListFriends(alice) failed: %v", err)
	}
	bobFriends, err := friends.ListFriends(ctx, "bob")
	if err != nil {
		t.Fatalf("ListFriends(bob) failed: %v", err)
	}
	if len(aliceFriends) != 1 || aliceFriends[0] != "bob" {
		t.Errorf("ListFriends(alice) = %v, want [bob]", aliceFriends)
	}
	if len(bobFriends) != 1 || bobFriends[0] != "alice" {
		t.Errorf("ListFriends(bob) = %v, want [alice]", bobFriends)
	}

	// A second response to the same request must not fire again.
	err = friends.RespondToRequest(ctx, request.ID, true)
	apiErr, ok := err.(*errors.APIError)
	if !ok || apiErr.Code != errors.ErrNotFound.Code {
		t.Fatalf("double respond error = %v, want %s", err, errors.ErrNotFound.Code)
	}

	// Sending again while already friends is blocked.
	_, err = friends.SendRequest(ctx, "alice", "bob")
	apiErr, ok = err.(*errors.APIError)
	if !ok || apiErr.Code != errors.ErrAlreadyFriends.Code {
		t.Fatalf("SendRequest after accept error = %v, want %s", err, errors.ErrAlreadyFriends.Code)
	}
}

func TestRejectAllowsResend(t *testing.T) {
	ctx, _, _, friends, _, _, _ := newTestServices(t)

	request, err := friends.SendRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if err := friends.RespondToRequest(ctx, request.ID, false); err != nil {
		t.Fatalf("RespondToRequest(reject) failed: %v", err)
	}

	// Rejection is terminal for that request, but a new request is allowed.
	if _, err := friends.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("re-send after rejection failed: %v", err)
	}

	bobFriends, err := friends.ListFriends(ctx, "bob")
	if err != nil {
		t.Fatalf("ListFriends failed: %v", err)
	}
	if len(bobFriends) != 0 {
		t.Errorf("rejected request must not create friendships, got %v", bobFriends)
	}
}

func TestToggleLikeConsistency(t *testing.T) {
	ctx, st, _, _, feed, _, _ := newTestServices(t)

	post, err := feed.CreatePost(ctx, "author", "beach day", "", "", []string{"Beaches"})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	for i := 1; i <= 5; i++ {
		liked, err := feed.ToggleLike(ctx, "viewer", post.ID)
		if err != nil {
			t.Fatalf("ToggleLike %d failed: %v", i, err)
		}
		wantLiked := i%2 == 1
		if liked != wantLiked {
			t.Errorf("toggle %d: liked = %v, want %v", i, liked, wantLiked)
		}

		var stored models.Post
		if err := st.Posts().FindOne(ctx, bson.M{"_id": post.ID}).Decode(&stored); err != nil {
			t.Fatalf("FindOne failed: %v", err)
		}
		if stored.Likes != len(stored.LikedBy) {
			t.Errorf("toggle %d: likes = %d but likedBy has %d entries", i, stored.Likes, len(stored.LikedBy))
		}
		contains := false
		for _, id := range stored.LikedBy {
			if id == "viewer" {
				contains = true
			}
		}
		if contains != wantLiked {
			t.Errorf("toggle %d: likedBy contains viewer = %v, want %v", i, contains, wantLiked)
		}
	}
}

func TestEditPostLeavesOmittedFieldsAlone(t *testing.T) {
	ctx, st, _, _, feed, _, _ := newTestServices(t)

	post, err := feed.CreatePost(ctx, "author", "original body", "photo.jpg", "image", []string{"Beaches"})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	// Editing only categories must not blank the body or media.
	if err := feed.EditPost(ctx, "author", post.ID, "", "", []string{"Temples"}); err != nil {
		t.Fatalf("EditPost failed: %v", err)
	}

	var stored models.Post
	if err := st.Posts().FindOne(ctx, bson.M{"_id": post.ID}).Decode(&stored); err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if stored.Text != "original body" {
		t.Errorf("text = %q, want original body preserved", stored.Text)
	}
	if stored.MediaURI != "photo.jpg" {
		t.Errorf("mediaUri = %q, want photo.jpg preserved", stored.MediaURI)
	}
	if len(stored.Categories) != 1 || stored.Categories[0] != "Temples" {
		t.Errorf("categories = %v, want [Temples]", stored.Categories)
	}

	// An edit that changes nothing is rejected.
	err = feed.EditPost(ctx, "author", post.ID, "", "", nil)
	apiErr, ok := err.(*errors.APIError)
	if !ok || apiErr.Code != errors.ErrInvalidInput.Code {
		t.Fatalf("empty edit error = %v, want %s", err, errors.ErrInvalidInput.Code)
	}
}

func TestUnreadCountWatermark(t *testing.T) {
	ctx, st, _, _, _, chat, _ := newTestServices(t)

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	convID := models.ConversationID("viewer", "peer")
	for _, offset := range []time.Duration{50, 90, 110, 150} {
		msg := models.Message{
			ID:             uuid.New().String(),
			ConversationID: convID,
			SenderID:       "peer",
			Text:           "hi",
			CreatedAt:      base.Add(offset * time.Second),
		}
		if _, err := st.Messages().InsertOne(ctx, msg); err != nil {
			t.Fatalf("InsertOne failed: %v", err)
		}
	}

	// No watermark yet: everything from the peer is unread.
	count, err := chat.UnreadCount(ctx, "viewer", "peer")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 4 {
		t.Errorf("unread without watermark = %d, want 4", count)
	}

	seen := models.LastSeen{
		ID:       models.LastSeenID("viewer", "peer"),
		ViewerID: "viewer",
		PeerID:   "peer",
		SeenAt:   base.Add(100 * time.Second),
	}
	if _, err := st.LastSeen().InsertOne(ctx, seen); err != nil {
		t.Fatalf("InsertOne(lastSeen) failed: %v", err)
	}

	count, err = chat.UnreadCount(ctx, "viewer", "peer")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("unread with watermark at t=100 = %d, want 2 (t=110, t=150)", count)
	}

	// The viewer's own messages never count as unread.
	own := models.Message{
		ID: uuid.New().String(), ConversationID: convID,
		SenderID: "viewer", Text: "reply", CreatedAt: base.Add(200 * time.Second),
	}
	if _, err := st.Messages().InsertOne(ctx, own); err != nil {
		t.Fatalf("InsertOne failed: %v", err)
	}
	count, err = chat.UnreadCount(ctx, "viewer", "peer")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("unread after own reply = %d, want 2", count)
	}
}

func TestOpenConversationMovesWatermark(t *testing.T) {
	ctx, _, _, _, _, chat, _ := newTestServices(t)

	if _, err := chat.SendMessage(ctx, "peer", "viewer", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	count, err := chat.UnreadCount(ctx, "viewer", "peer")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("unread before open = %d, want 1", count)
	}

	messages, err := chat.OpenConversation(ctx, "viewer", "peer")
	if err != nil {
		t.Fatalf("OpenConversation failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("OpenConversation returned %d messages, want 1", len(messages))
	}

	count, err = chat.UnreadCount(ctx, "viewer", "peer")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("unread after open = %d, want 0", count)
	}
}

func TestGoalCompletionMonotonic(t *testing.T) {
	ctx, st, _, _, feed, _, goals := newTestServices(t)

	user := models.User{ID: uuid.New().String(), PublicID: "alice", FullName: "Alice", Email: "alice@example.com", Points: 0}
	if _, err := st.Users().InsertOne(ctx, user); err != nil {
		t.Fatalf("InsertOne(user) failed: %v", err)
	}

	goal := models.Goal{
		ID:        uuid.New().String(),
		UserID:    "alice",
		Category:  "Beaches",
		Type:      "post",
		Target:    1,
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if _, err := st.Goals().InsertOne(ctx, goal); err != nil {
		t.Fatalf("InsertOne(goal) failed: %v", err)
	}

	post, err := feed.CreatePost(ctx, "alice", "beach trip", "", "", []string{"Beaches"})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	completions := make(chan Completion, 1)
	if err := goals.Recompute(ctx, "alice", completions); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	select {
	case c := <-completions:
		if c.GoalID != goal.ID {
			t.Errorf("completion for goal %s, want %s", c.GoalID, goal.ID)
		}
	default:
		t.Fatal("expected a completion signal")
	}

	var stored models.Goal
	if err := st.Goals().FindOne(ctx, bson.M{"_id": goal.ID}).Decode(&stored); err != nil {
		t.Fatalf("FindOne(goal) failed: %v", err)
	}
	if !stored.Completed || stored.Progress != 1 {
		t.Errorf("goal = {completed: %v, progress: %d}, want {true, 1}", stored.Completed, stored.Progress)
	}

	var storedUser models.User
	if err := st.Users().FindOne(ctx, bson.M{"public_id": "alice"}).Decode(&storedUser); err != nil {
		t.Fatalf("FindOne(user) failed: %v", err)
	}
	if storedUser.Points != CompletionBonus {
		t.Errorf("points = %d, want %d", storedUser.Points, CompletionBonus)
	}

	// Deleting the post drops progress below target, but a completed goal
	// never un-completes and the bonus is never paid twice.
	if err := feed.DeletePost(ctx, "alice", post.ID); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if err := goals.Recompute(ctx, "alice", completions); err != nil {
		t.Fatalf("second Recompute failed: %v", err)
	}

	select {
	case c := <-completions:
		t.Errorf("unexpected second completion signal for goal %s", c.GoalID)
	default:
	}

	if err := st.Goals().FindOne(ctx, bson.M{"_id": goal.ID}).Decode(&stored); err != nil {
		t.Fatalf("FindOne(goal) failed: %v", err)
	}
	if !stored.Completed {
		t.Error("completed flag reverted after progress dropped below target")
	}
	if err := st.Users().FindOne(ctx, bson.M{"public_id": "alice"}).Decode(&storedUser); err != nil {
		t.Fatalf("FindOne(user) failed: %v", err)
	}
	if storedUser.Points != CompletionBonus {
		t.Errorf("points = %d after second recompute, want %d", storedUser.Points, CompletionBonus)
	}
}

func TestSubscribeIncomingRequestsDeliversSnapshots(t *testing.T) {
	ctx, _, _, friends, _, _, _ := newTestServices(t)

	updates, sub, err := friends.SubscribeIncomingRequests(ctx, "bob")
	if err != nil {
		t.Fatalf("SubscribeIncomingRequests failed: %v", err)
	}
	defer sub.Unsubscribe()

	// The first snapshot is delivered immediately, before any change.
	select {
	case initial := <-updates:
		if len(initial) != 0 {
			t.Fatalf("initial snapshot has %d requests, want 0", len(initial))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	if _, err := friends.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snapshot := <-updates:
			if len(snapshot) == 1 && snapshot[0].FromUserID == "alice" {
				return
			}
		case err := <-sub.Errs():
			t.Fatalf("subscription error: %v", err)
		case <-deadline:
			t.Fatal("timed out waiting for request snapshot")
		}
	}
}

func TestGoalRecomputeSkipsMalformed(t *testing.T) {
	ctx, st, _, _, feed, _, goals := newTestServices(t)

	if _, err := st.Users().InsertOne(ctx, models.User{ID: uuid.New().String(), PublicID: "alice", Email: "a@example.com"}); err != nil {
		t.Fatalf("InsertOne(user) failed: %v", err)
	}

	malformed := models.Goal{
		ID: uuid.New().String(), UserID: "alice", Target: 1,
		CreatedAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	}
	good := models.Goal{
		ID: uuid.New().String(), UserID: "alice", Category: "Temples", Type: "post_count", Target: 1,
		CreatedAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	}
	for _, g := range []models.Goal{malformed, good} {
		if _, err := st.Goals().InsertOne(ctx, g); err != nil {
			t.Fatalf("InsertOne(goal) failed: %v", err)
		}
	}

	if _, err := feed.CreatePost(ctx, "alice", "temple visit", "", "", []string{"Temples"}); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	// The malformed goal must not abort the batch.
	if err := goals.Recompute(ctx, "alice", nil); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	var stored models.Goal
	if err := st.Goals().FindOne(ctx, bson.M{"_id": good.ID}).Decode(&stored); err != nil {
		t.Fatalf("FindOne(goal) failed: %v", err)
	}
	if stored.Progress != 1 || !stored.Completed {
		t.Errorf("good goal = {progress: %d, completed: %v}, want {1, true}", stored.Progress, stored.Completed)
	}
}
