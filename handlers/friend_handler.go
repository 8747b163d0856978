package handlers

import (
	"encoding/json"
	"net/http"

	"tripmate-server/middleware"
	"tripmate-server/services"
	"tripmate-server/utils/errors"
)

type FriendHandler struct {
	friendService *services.FriendService
}

func NewFriendHandler(friendService *services.FriendService) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

func (h *FriendHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	var input struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.RecipientID == "" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	request, err := h.friendService.SendRequest(r.Context(), userID, input.RecipientID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

func (h *FriendHandler) RespondToFriendRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserID(r.Context()); !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	var input struct {
		RequestID string `json:"request_id"`
		Decision  string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.RequestID == "" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}
	if input.Decision != "accept" && input.Decision != "reject" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	err := h.friendService.RespondToRequest(r.Context(), input.RequestID, input.Decision == "accept")
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Friend request " + input.Decision + "ed"})
}

func (h *FriendHandler) ListFriendRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	requests, err := h.friendService.ListIncomingRequests(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"requests": requests, "count": len(requests)})
}

func (h *FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	friends, err := h.friendService.ListFriends(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"friends": friends, "count": len(friends)})
}
