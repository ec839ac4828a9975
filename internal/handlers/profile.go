package handlers

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/HammerMeetNail/levelup/internal/models"
	"github.com/HammerMeetNail/levelup/internal/services"
)

type ProfileHandler struct {
	profiles services.ProfileServiceInterface
}

func NewProfileHandler(profiles services.ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type RegisterRequest struct {
	Username string `json:"username"`
}

type UpdateProfileRequest struct {
	Username *string `json:"username,omitempty"`
	IconURL  *string `json:"icon_url,omitempty"`
}

type SettingsResponse struct {
	Settings map[string]any `json:"settings"`
}

// Get returns the signed-in user's profile, creating it when allowed.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	profile, err := h.profiles.EnsureProfile(r.Context(), principal.UserID, principal.Email)
	if err != nil {
		writeServiceError(w, r, err, "get profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Register completes sign-up by claiming a username.
func (h *ProfileHandler) Register(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := h.profiles.Register(r.Context(), principal.UserID, principal.Email, req.Username)
	if err != nil {
		writeServiceError(w, r, err, "register")
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == nil && req.IconURL == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}
	if req.IconURL != nil && !slices.Contains(models.DefaultIcons, *req.IconURL) {
		writeError(w, http.StatusBadRequest, "Unknown icon")
		return
	}
	if req.Username != nil {
		if err := services.ValidateUsername(*req.Username); err != nil {
			writeServiceError(w, r, err, "update profile")
			return
		}
	}

	ctx := r.Context()
	err := h.profiles.UpdateProfile(ctx, principal.UserID, models.ProfileUpdate{
		Username: req.Username,
		IconURL:  req.IconURL,
	})
	if err != nil {
		writeServiceError(w, r, err, "update profile")
		return
	}

	profile, err := h.profiles.GetProfile(ctx, principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "get profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	settings, err := h.profiles.GetSettings(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "get settings")
		return
	}
	if settings == nil {
		settings = map[string]any{}
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: settings})
}

func (h *ProfileHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	var req SettingsResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Settings == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.profiles.SaveSettings(r.Context(), principal.UserID, req.Settings); err != nil {
		writeServiceError(w, r, err, "save settings")
		return
	}
	writeJSON(w, http.StatusOK, req)
}
