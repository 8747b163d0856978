package handlers

import (
	"encoding/json"
	"net/http"

	"tripmate-server/middleware"
	"tripmate-server/services"
	"tripmate-server/utils/errors"
)

type MatchHandler struct {
	matchService *services.MatchService
}

func NewMatchHandler(matchService *services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

func (h *MatchHandler) GetMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	matches, err := h.matchService.MatchTravelers(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"matching_users": matches, "count": len(matches)})
}
