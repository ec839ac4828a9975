package services

import (
	"context"

	"github.com/HammerMeetNail/levelup/internal/models"
)

// ProfileServiceInterface defines the contract for profile operations used by handlers.
type ProfileServiceInterface interface {
	CreateProfile(ctx context.Context, userID, email string) (*models.Profile, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	EnsureProfile(ctx context.Context, userID, email string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) error
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	SearchByUsernamePrefix(ctx context.Context, term string) ([]models.UserSummary, error)
	Register(ctx context.Context, userID, email, username string) (*models.Profile, error)
	GetSettings(ctx context.Context, userID string) (map[string]any, error)
	SaveSettings(ctx context.Context, userID string, settings map[string]any) error
	AddXP(ctx context.Context, userID string, delta int64) (int64, error)
	GetUsername(ctx context.Context, userID string) (string, error)
}

// RankingServiceInterface defines the contract for leaderboard operations.
type RankingServiceInterface interface {
	GetTopByXP(ctx context.Context, n int) ([]models.LeaderboardEntry, error)
	GetRankByID(ctx context.Context, userID string) (int, error)
}

// RelationshipServiceInterface defines the contract for friend request and friendship operations.
type RelationshipServiceInterface interface {
	SendRequest(ctx context.Context, senderID, recipientID string) error
	AcceptRequest(ctx context.Context, accepterID, requesterID string) error
	IgnoreRequest(ctx context.Context, ignorerID, requesterID string) error
	GetRelationship(ctx context.Context, viewerID, subjectID string) (models.Relationship, error)
	ListFriendRequests(ctx context.Context, userID string) ([]models.FriendRequest, error)
	ListFriends(ctx context.Context, userID string, limit int) ([]models.FriendSummary, error)
	RepairMirrors(ctx context.Context) (RepairReport, error)
}

// DiscoveryServiceInterface defines the contract for finding other users.
type DiscoveryServiceInterface interface {
	Search(ctx context.Context, viewerID, term string) ([]models.SearchResult, error)
	ProfileView(ctx context.Context, viewerID, username string) (*models.ProfileView, error)
}

var (
	_ ProfileServiceInterface      = (*ProfileService)(nil)
	_ RankingServiceInterface      = (*RankingService)(nil)
	_ RelationshipServiceInterface = (*RelationshipService)(nil)
	_ DiscoveryServiceInterface    = (*DiscoveryService)(nil)
	_ LeaderboardObserver          = (*RankingService)(nil)
	_ Cache                        = (*RedisAdapter)(nil)
	_ DB                           = (*PoolAdapter)(nil)
)
