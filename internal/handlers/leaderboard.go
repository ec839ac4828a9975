package handlers

import (
	"net/http"

	"github.com/HammerMeetNail/levelup/internal/models"
	"github.com/HammerMeetNail/levelup/internal/services"
)

type LeaderboardHandler struct {
	ranking services.RankingServiceInterface
}

func NewLeaderboardHandler(ranking services.RankingServiceInterface) *LeaderboardHandler {
	return &LeaderboardHandler{ranking: ranking}
}

type LeaderboardResponse struct {
	Entries []models.LeaderboardEntry `json:"entries"`
}

type RankResponse struct {
	UserID string `json:"user_id"`
	Rank   int    `json:"rank"`
}

func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	entries, err := h.ranking.GetTopByXP(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err, "leaderboard")
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: entries})
}

// Rank returns the signed-in user's position; 0 means unranked.
func (h *LeaderboardHandler) Rank(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	rank, err := h.ranking.GetRankByID(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "rank")
		return
	}
	writeJSON(w, http.StatusOK, RankResponse{UserID: principal.UserID, Rank: rank})
}
