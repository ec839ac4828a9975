package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HammerMeetNail/levelup/internal/auth"
	"github.com/HammerMeetNail/levelup/internal/models"
	"github.com/HammerMeetNail/levelup/internal/services"
)

type mockProfileService struct {
	CreateProfileFunc          func(ctx context.Context, userID, email string) (*models.Profile, error)
	GetProfileFunc             func(ctx context.Context, userID string) (*models.Profile, error)
	EnsureProfileFunc          func(ctx context.Context, userID, email string) (*models.Profile, error)
	UpdateProfileFunc          func(ctx context.Context, userID string, update models.ProfileUpdate) error
	GetProfileByUsernameFunc   func(ctx context.Context, username string) (*models.Profile, error)
	UsernameExistsFunc         func(ctx context.Context, username string) (bool, error)
	SearchByUsernamePrefixFunc func(ctx context.Context, term string) ([]models.UserSummary, error)
	RegisterFunc               func(ctx context.Context, userID, email, username string) (*models.Profile, error)
	GetSettingsFunc            func(ctx context.Context, userID string) (map[string]any, error)
	SaveSettingsFunc           func(ctx context.Context, userID string, settings map[string]any) error
	AddXPFunc                  func(ctx context.Context, userID string, delta int64) (int64, error)
	GetUsernameFunc            func(ctx context.Context, userID string) (string, error)
}

func (m *mockProfileService) CreateProfile(ctx context.Context, userID, email string) (*models.Profile, error) {
	if m.CreateProfileFunc != nil {
		return m.CreateProfileFunc(ctx, userID, email)
	}
	return nil, nil
}

func (m *mockProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if m.GetProfileFunc != nil {
		return m.GetProfileFunc(ctx, userID)
	}
	return &models.Profile{ID: userID}, nil
}

func (m *mockProfileService) EnsureProfile(ctx context.Context, userID, email string) (*models.Profile, error) {
	if m.EnsureProfileFunc != nil {
		return m.EnsureProfileFunc(ctx, userID, email)
	}
	return nil, nil
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) error {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, userID, update)
	}
	return nil
}

func (m *mockProfileService) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	if m.GetProfileByUsernameFunc != nil {
		return m.GetProfileByUsernameFunc(ctx, username)
	}
	return nil, nil
}

func (m *mockProfileService) UsernameExists(ctx context.Context, username string) (bool, error) {
	if m.UsernameExistsFunc != nil {
		return m.UsernameExistsFunc(ctx, username)
	}
	return false, nil
}

func (m *mockProfileService) SearchByUsernamePrefix(ctx context.Context, term string) ([]models.UserSummary, error) {
	if m.SearchByUsernamePrefixFunc != nil {
		return m.SearchByUsernamePrefixFunc(ctx, term)
	}
	return nil, nil
}

func (m *mockProfileService) Register(ctx context.Context, userID, email, username string) (*models.Profile, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, userID, email, username)
	}
	return nil, nil
}

func (m *mockProfileService) GetSettings(ctx context.Context, userID string) (map[string]any, error) {
	if m.GetSettingsFunc != nil {
		return m.GetSettingsFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockProfileService) SaveSettings(ctx context.Context, userID string, settings map[string]any) error {
	if m.SaveSettingsFunc != nil {
		return m.SaveSettingsFunc(ctx, userID, settings)
	}
	return nil
}

func (m *mockProfileService) AddXP(ctx context.Context, userID string, delta int64) (int64, error) {
	if m.AddXPFunc != nil {
		return m.AddXPFunc(ctx, userID, delta)
	}
	return 0, nil
}

func (m *mockProfileService) GetUsername(ctx context.Context, userID string) (string, error) {
	if m.GetUsernameFunc != nil {
		return m.GetUsernameFunc(ctx, userID)
	}
	return "", nil
}

type mockRankingService struct {
	GetTopByXPFunc  func(ctx context.Context, n int) ([]models.LeaderboardEntry, error)
	GetRankByIDFunc func(ctx context.Context, userID string) (int, error)
}

func (m *mockRankingService) GetTopByXP(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if m.GetTopByXPFunc != nil {
		return m.GetTopByXPFunc(ctx, n)
	}
	return nil, nil
}

func (m *mockRankingService) GetRankByID(ctx context.Context, userID string) (int, error) {
	if m.GetRankByIDFunc != nil {
		return m.GetRankByIDFunc(ctx, userID)
	}
	return 0, nil
}

type mockRelationshipService struct {
	SendRequestFunc        func(ctx context.Context, senderID, recipientID string) error
	AcceptRequestFunc      func(ctx context.Context, accepterID, requesterID string) error
	IgnoreRequestFunc      func(ctx context.Context, ignorerID, requesterID string) error
	GetRelationshipFunc    func(ctx context.Context, viewerID, subjectID string) (models.Relationship, error)
	ListFriendRequestsFunc func(ctx context.Context, userID string) ([]models.FriendRequest, error)
	ListFriendsFunc        func(ctx context.Context, userID string, limit int) ([]models.FriendSummary, error)
	RepairMirrorsFunc      func(ctx context.Context) (services.RepairReport, error)
}

func (m *mockRelationshipService) SendRequest(ctx context.Context, senderID, recipientID string) error {
	if m.SendRequestFunc != nil {
		return m.SendRequestFunc(ctx, senderID, recipientID)
	}
	return nil
}

func (m *mockRelationshipService) AcceptRequest(ctx context.Context, accepterID, requesterID string) error {
	if m.AcceptRequestFunc != nil {
		return m.AcceptRequestFunc(ctx, accepterID, requesterID)
	}
	return nil
}

func (m *mockRelationshipService) IgnoreRequest(ctx context.Context, ignorerID, requesterID string) error {
	if m.IgnoreRequestFunc != nil {
		return m.IgnoreRequestFunc(ctx, ignorerID, requesterID)
	}
	return nil
}

func (m *mockRelationshipService) GetRelationship(ctx context.Context, viewerID, subjectID string) (models.Relationship, error) {
	if m.GetRelationshipFunc != nil {
		return m.GetRelationshipFunc(ctx, viewerID, subjectID)
	}
	return models.RelationshipNone, nil
}

func (m *mockRelationshipService) ListFriendRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	if m.ListFriendRequestsFunc != nil {
		return m.ListFriendRequestsFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockRelationshipService) ListFriends(ctx context.Context, userID string, limit int) ([]models.FriendSummary, error) {
	if m.ListFriendsFunc != nil {
		return m.ListFriendsFunc(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockRelationshipService) RepairMirrors(ctx context.Context) (services.RepairReport, error) {
	if m.RepairMirrorsFunc != nil {
		return m.RepairMirrorsFunc(ctx)
	}
	return services.RepairReport{}, nil
}

type mockDiscoveryService struct {
	SearchFunc      func(ctx context.Context, viewerID, term string) ([]models.SearchResult, error)
	ProfileViewFunc func(ctx context.Context, viewerID, username string) (*models.ProfileView, error)
}

func (m *mockDiscoveryService) Search(ctx context.Context, viewerID, term string) ([]models.SearchResult, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, viewerID, term)
	}
	return nil, nil
}

func (m *mockDiscoveryService) ProfileView(ctx context.Context, viewerID, username string) (*models.ProfileView, error) {
	if m.ProfileViewFunc != nil {
		return m.ProfileViewFunc(ctx, viewerID, username)
	}
	return nil, nil
}

type mockQuizSessions struct {
	StartFunc    func(ctx context.Context, userID string) (models.QuizState, error)
	SnapshotFunc func(userID string) (models.QuizState, error)
	SubmitFunc   func(ctx context.Context, userID, answer string) (models.QuizState, error)
	NextFunc     func(ctx context.Context, userID string) (models.QuizState, error)
	EndFunc      func(ctx context.Context, userID string) (models.QuizState, error)
}

func (m *mockQuizSessions) Start(ctx context.Context, userID string) (models.QuizState, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, userID)
	}
	return models.QuizState{}, nil
}

func (m *mockQuizSessions) Snapshot(userID string) (models.QuizState, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(userID)
	}
	return models.QuizState{}, nil
}

func (m *mockQuizSessions) Submit(ctx context.Context, userID, answer string) (models.QuizState, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, userID, answer)
	}
	return models.QuizState{}, nil
}

func (m *mockQuizSessions) Next(ctx context.Context, userID string) (models.QuizState, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, userID)
	}
	return models.QuizState{}, nil
}

func (m *mockQuizSessions) End(ctx context.Context, userID string) (models.QuizState, error) {
	if m.EndFunc != nil {
		return m.EndFunc(ctx, userID)
	}
	return models.QuizState{}, nil
}

type mockFriendRecorder struct {
	actions []string
}

func (m *mockFriendRecorder) FriendRequestAction(action string) {
	m.actions = append(m.actions, action)
}

var testPrincipal = &auth.Principal{UserID: "user-1", Email: "user1@example.com"}

func newAuthedRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(SetPrincipalInContext(req.Context(), testPrincipal))
}

func assertErrorResponse(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d", status, rr.Code)
	}
	if ct := rr.Result().Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected content type application/json, got %q", ct)
	}

	var response ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Error != message {
		t.Fatalf("expected error %q, got %q", message, response.Error)
	}
}
