package handlers

import (
	"encoding/json"
	"net/http"

	"tripmate-server/middleware"
	"tripmate-server/services"
	"tripmate-server/utils/errors"

	"github.com/gorilla/mux"
)

type FeedHandler struct {
	feedService *services.FeedService
}

func NewFeedHandler(feedService *services.FeedService) *FeedHandler {
	return &FeedHandler{feedService: feedService}
}

func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	posts, err := h.feedService.ListFeed(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"posts": posts, "count": len(posts)})
}

func (h *FeedHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	var input struct {
		Text       string   `json:"text"`
		MediaURI   string   `json:"media_uri"`
		MediaKind  string   `json:"media_kind"`
		Categories []string `json:"categories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	post, err := h.feedService.CreatePost(r.Context(), userID, input.Text, input.MediaURI, input.MediaKind, input.Categories)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(post)
}

func (h *FeedHandler) EditPost(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}
	postID := mux.Vars(r)["postID"]

	var input struct {
		Text       string   `json:"text"`
		MediaURI   string   `json:"media_uri"`
		Categories []string `json:"categories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	if err := h.feedService.EditPost(r.Context(), userID, postID, input.Text, input.MediaURI, input.Categories); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Post updated"})
}

func (h *FeedHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}
	postID := mux.Vars(r)["postID"]

	if err := h.feedService.DeletePost(r.Context(), userID, postID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Post deleted"})
}

func (h *FeedHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}
	postID := mux.Vars(r)["postID"]

	liked, err := h.feedService.ToggleLike(r.Context(), userID, postID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"liked": liked})
}
