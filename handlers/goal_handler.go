package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"tripmate-server/middleware"
	"tripmate-server/services"
	"tripmate-server/utils/errors"
)

type GoalHandler struct {
	goalService *services.GoalService
}

func NewGoalHandler(goalService *services.GoalService) *GoalHandler {
	return &GoalHandler{goalService: goalService}
}

func (h *GoalHandler) ListActiveGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	goals, err := h.goalService.ActiveGoals(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"goals": goals, "count": len(goals)})
}

// RecomputeGoals re-evaluates the caller's active goals on demand, the same
// computation the live subscription runs on each post change.
func (h *GoalHandler) RecomputeGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	if err := h.goalService.Recompute(r.Context(), userID, nil); err != nil {
		middleware.WriteError(w, err)
		return
	}

	goals, err := h.goalService.ActiveGoals(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"goals": goals, "count": len(goals)})
}

func (h *GoalHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.UserID(r.Context()); !ok {
		middleware.WriteError(w, errors.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.goalService.Leaderboard(r.Context(), limit)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"leaderboard": entries, "count": len(entries)})
}
