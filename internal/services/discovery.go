package services

import (
	"context"
	"fmt"

	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/models"
)

// ProfileFinder is the part of the profile store discovery reads from.
type ProfileFinder interface {
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	SearchByUsernamePrefix(ctx context.Context, term string) ([]models.UserSummary, error)
}

type RelationshipReader interface {
	GetRelationship(ctx context.Context, viewerID, subjectID string) (models.Relationship, error)
	ListFriends(ctx context.Context, userID string, limit int) ([]models.FriendSummary, error)
}

type RankReader interface {
	GetRankByID(ctx context.Context, userID string) (int, error)
}

type DiscoveryService struct {
	profiles      ProfileFinder
	relationships RelationshipReader
	ranks         RankReader
}

func NewDiscoveryService(profiles ProfileFinder, relationships RelationshipReader, ranks RankReader) *DiscoveryService {
	return &DiscoveryService{profiles: profiles, relationships: relationships, ranks: ranks}
}

// Search finds users by username prefix, excluding the viewer, and tags each with
// the viewer's relationship to them.
func (s *DiscoveryService) Search(ctx context.Context, viewerID, term string) ([]models.SearchResult, error) {
	if viewerID == "" {
		return nil, ErrInvalidArgument
	}

	users, err := s.profiles.SearchByUsernamePrefix(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}

	results := make([]models.SearchResult, 0, len(users))
	for _, u := range users {
		if u.ID == viewerID {
			continue
		}
		rel, err := s.relationships.GetRelationship(ctx, viewerID, u.ID)
		if err != nil {
			logging.Warn("Failed to resolve relationship", map[string]interface{}{"error": err.Error(), "viewer_id": viewerID, "subject_id": u.ID})
			rel = models.RelationshipNone
		}
		if u.IconURL == "" {
			u.IconURL = models.FallbackIcon
		}
		results = append(results, models.SearchResult{UserSummary: u, Relationship: rel})
	}
	return results, nil
}

// ProfileView assembles another user's profile page. Rank and friend list failures
// degrade to zero values.
func (s *DiscoveryService) ProfileView(ctx context.Context, viewerID, username string) (*models.ProfileView, error) {
	if viewerID == "" {
		return nil, ErrInvalidArgument
	}

	p, err := s.profiles.GetProfileByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	view := &models.ProfileView{
		ID:       p.ID,
		Username: p.Username,
		XP:       p.XP,
		IconURL:  p.IconURL,
		IsSelf:   p.ID == viewerID,
		Friends:  []models.FriendSummary{},
	}
	if view.IconURL == "" {
		view.IconURL = models.FallbackIcon
	}

	if rank, err := s.ranks.GetRankByID(ctx, p.ID); err != nil {
		logging.Warn("Failed to load rank", map[string]interface{}{"error": err.Error(), "user_id": p.ID})
	} else {
		view.Rank = rank
	}

	if friends, err := s.relationships.ListFriends(ctx, p.ID, DefaultFriendListLimit); err != nil {
		logging.Warn("Failed to load friends", map[string]interface{}{"error": err.Error(), "user_id": p.ID})
	} else {
		view.Friends = friends
	}

	if !view.IsSelf {
		rel, err := s.relationships.GetRelationship(ctx, viewerID, p.ID)
		if err != nil {
			logging.Warn("Failed to resolve relationship", map[string]interface{}{"error": err.Error(), "viewer_id": viewerID, "subject_id": p.ID})
			rel = models.RelationshipNone
		}
		view.Relationship = &rel
	}
	return view, nil
}
