package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/HammerMeetNail/levelup/internal/models"
	"github.com/HammerMeetNail/levelup/internal/services"
)

// FriendActionRecorder counts friend request actions.
type FriendActionRecorder interface {
	FriendRequestAction(action string)
}

type FriendHandler struct {
	relationships services.RelationshipServiceInterface
	profiles      services.ProfileServiceInterface
	recorder      FriendActionRecorder
}

func NewFriendHandler(relationships services.RelationshipServiceInterface, profiles services.ProfileServiceInterface, recorder FriendActionRecorder) *FriendHandler {
	return &FriendHandler{
		relationships: relationships,
		profiles:      profiles,
		recorder:      recorder,
	}
}

type SendRequestRequest struct {
	FriendID string `json:"friend_id"`
}

type FriendListResponse struct {
	Friends []models.FriendSummary `json:"friends"`
}

type FriendRequestsResponse struct {
	Requests []models.FriendRequest `json:"requests"`
}

type RelationshipResponse struct {
	UserID       string              `json:"user_id"`
	Relationship models.Relationship `json:"relationship"`
}

func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	friends, err := h.relationships.ListFriends(r.Context(), principal.UserID, limit)
	if err != nil {
		writeServiceError(w, r, err, "list friends")
		return
	}
	if friends == nil {
		friends = []models.FriendSummary{}
	}
	writeJSON(w, http.StatusOK, FriendListResponse{Friends: friends})
}

// Requests lists pending and received requests. ?status=received keeps only
// the ones the user can act on.
func (h *FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && status != string(models.RequestStatusReceived) {
		writeError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	requests, err := h.relationships.ListFriendRequests(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, r, err, "list friend requests")
		return
	}
	if status == string(models.RequestStatusReceived) {
		requests = models.ReceivedOnly(requests)
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, FriendRequestsResponse{Requests: requests})
}

func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	var req SendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	friendID := strings.TrimSpace(req.FriendID)
	if friendID == "" {
		writeError(w, http.StatusBadRequest, "Invalid friend ID")
		return
	}

	ctx := r.Context()
	if friendID != principal.UserID {
		if _, err := h.profiles.GetProfile(ctx, friendID); err != nil {
			writeServiceError(w, r, err, "send friend request")
			return
		}
	}

	if err := h.relationships.SendRequest(ctx, principal.UserID, friendID); err != nil {
		writeServiceError(w, r, err, "send friend request")
		return
	}
	h.record("send")
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Friend request sent"})
}

func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	requesterID := r.PathValue("id")
	if err := h.relationships.AcceptRequest(r.Context(), principal.UserID, requesterID); err != nil {
		writeServiceError(w, r, err, "accept friend request")
		return
	}
	h.record("accept")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Friend request accepted"})
}

func (h *FriendHandler) IgnoreRequest(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	requesterID := r.PathValue("id")
	if err := h.relationships.IgnoreRequest(r.Context(), principal.UserID, requesterID); err != nil {
		writeServiceError(w, r, err, "ignore friend request")
		return
	}
	h.record("ignore")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Friend request ignored"})
}

func (h *FriendHandler) Relationship(w http.ResponseWriter, r *http.Request) {
	principal := requirePrincipal(w, r)
	if principal == nil {
		return
	}

	subjectID := r.PathValue("id")
	rel, err := h.relationships.GetRelationship(r.Context(), principal.UserID, subjectID)
	if err != nil {
		writeServiceError(w, r, err, "get relationship")
		return
	}
	writeJSON(w, http.StatusOK, RelationshipResponse{UserID: subjectID, Relationship: rel})
}

func (h *FriendHandler) record(action string) {
	if h.recorder != nil {
		h.recorder.FriendRequestAction(action)
	}
}
