package handlers

import (
	"encoding/json"
	"net/http"

	"tripmate-server/middleware"
	"tripmate-server/services"
	"tripmate-server/utils/errors"

	"github.com/gorilla/mux"
)

type ChatHandler struct {
	chatService *services.ChatService
}

func NewChatHandler(chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	var input struct {
		PeerID string `json:"peer_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.PeerID == "" {
		middleware.WriteError(w, errors.ErrInvalidInput)
		return
	}

	message, err := h.chatService.SendMessage(r.Context(), userID, input.PeerID, input.Text)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(message)
}

// OpenConversation returns the conversation with a peer and stamps the
// viewer's last-seen watermark.
func (h *ChatHandler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}
	peerID := mux.Vars(r)["peerID"]

	messages, err := h.chatService.OpenConversation(r.Context(), userID, peerID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"messages": messages, "count": len(messages)})
}

func (h *ChatHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}
	peerID := mux.Vars(r)["peerID"]

	count, err := h.chatService.UnreadCount(r.Context(), userID, peerID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"unread": count})
}
