package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/HammerMeetNail/levelup/internal/auth"
	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/quiz"
	"github.com/HammerMeetNail/levelup/internal/services"
	"github.com/HammerMeetNail/levelup/internal/services/ai"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// requirePrincipal writes a 401 and returns nil when the request is anonymous.
func requirePrincipal(w http.ResponseWriter, r *http.Request) *auth.Principal {
	principal := GetPrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
	}
	return principal
}

// writeServiceError maps service sentinel errors to a status and message.
// Anything unrecognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, services.ErrInvalidUsername):
		writeError(w, http.StatusBadRequest, "Username must be 1-32 characters with no spaces")
	case errors.Is(err, services.ErrCannotFriendSelf):
		writeError(w, http.StatusBadRequest, "Cannot send friend request to yourself")
	case errors.Is(err, services.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, quiz.ErrEmptyAnswer):
		writeError(w, http.StatusBadRequest, "Answer is required")
	case errors.Is(err, ai.ErrInvalidInput), errors.Is(err, ai.ErrSafetyViolation):
		writeError(w, http.StatusBadRequest, "The request could not be processed")
	case errors.Is(err, services.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "Profile not found")
	case errors.Is(err, services.ErrNoFriendRequest):
		writeError(w, http.StatusNotFound, "Friend request not found")
	case errors.Is(err, quiz.ErrNoSession):
		writeError(w, http.StatusNotFound, "No quiz in progress")
	case errors.Is(err, services.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username is already taken")
	case errors.Is(err, services.ErrProfileExists):
		writeError(w, http.StatusConflict, "Profile already exists")
	case errors.Is(err, quiz.ErrSessionActive):
		writeError(w, http.StatusConflict, "A quiz is already in progress")
	case errors.Is(err, quiz.ErrInvalidState):
		writeError(w, http.StatusConflict, "That action is not available right now")
	case errors.Is(err, ai.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
	case errors.Is(err, ai.ErrAINotConfigured), errors.Is(err, ai.ErrAIProviderUnavailable), errors.Is(err, quiz.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "The quiz service is temporarily unavailable")
	default:
		logging.Error("Request failed", map[string]interface{}{
			"error":      err.Error(),
			"action":     action,
			"path":       r.URL.Path,
			"request_id": GetRequestIDFromContext(r.Context()),
		})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// parseLimit reads ?limit=. A missing value yields 0 so the service default applies.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
