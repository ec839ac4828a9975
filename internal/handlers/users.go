package handlers

import (
	"net/http"
	"strings"

	"github.com/HammerMeetNail/levelup/internal/models"
	"github.com/HammerMeetNail/levelup/internal/services"
)

type UserHandler struct {
	profiles  services.ProfileServiceInterface
	discovery services.DiscoveryServiceInterface
}

func NewUserHandler(profiles services.ProfileServiceInterface, discovery services.DiscoveryServiceInterface) *UserHandler {
	return &UserHandler{
		profiles:  profiles,
		discovery: discovery,
	}
}

type UsernameCheckResponse struct {
	Username string `json:"username"`
	Exists   bool   `json:"exists"`
}

type UserSearchResponse struct {
	Users []models.SearchResult `json:"users"`
}

// CheckUsername reports whether a username is taken. It is used during
// sign-up, before the user has a profile.
func (h *UserHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	exists, err := h.profiles.UsernameExists(r.Context(), username)
	if err != nil {
		writeServiceError(w, r, err, "check username")
		return
	}
	writeJSON(w, http.StatusOK, UsernameCheckResponse{Username: username, Exists: exists})
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, UserSearchResponse{Users: []models.SearchResult{}})
		return
	}

	users, err := h.discovery.Search(r.Context(), principal.UserID, query)
	if err != nil {
		writeServiceError(w, r, err, "search users")
		return
	}
	if users == nil {
		users = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, UserSearchResponse{Users: users})
}

func (h *UserHandler) View(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	username := r.PathValue("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	view, err := h.discovery.ProfileView(r.Context(), principal.UserID, username)
	if err != nil {
		writeServiceError(w, r, err, "view profile")
		return
	}
	writeJSON(w, http.StatusOK, view)
}
