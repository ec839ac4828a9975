package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/HammerMeetNail/levelup/internal/models"
)

// QuizSessions is the per-user quiz session registry.
type QuizSessions interface {
	Start(ctx context.Context, userID string) (models.QuizState, error)
	Snapshot(userID string) (models.QuizState, error)
	Submit(ctx context.Context, userID, answer string) (models.QuizState, error)
	Next(ctx context.Context, userID string) (models.QuizState, error)
	End(ctx context.Context, userID string) (models.QuizState, error)
}

type QuizHandler struct {
	sessions QuizSessions
}

func NewQuizHandler(sessions QuizSessions) *QuizHandler {
	return &QuizHandler{sessions: sessions}
}

type SubmitAnswerRequest struct {
	Answer string `json:"answer"`
}

func (h *QuizHandler) Start(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	state, err := h.sessions.Start(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "start quiz")
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	state, err := h.sessions.Snapshot(principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "get quiz")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *QuizHandler) Submit(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	var req SubmitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	state, err := h.sessions.Submit(r.Context(), principal.UserID, req.Answer)
	if err != nil {
		writeServiceError(w, r, err, "submit answer")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *QuizHandler) Next(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	state, err := h.sessions.Next(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "next question")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// End finishes the quiz. The score is written even if the client has
// already disconnected.
func (h *QuizHandler) End(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	state, err := h.sessions.End(context.WithoutCancel(r.Context()), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "end quiz")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
