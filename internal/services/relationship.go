package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/models"
)

var (
	ErrCannotFriendSelf = errors.New("cannot send friend request to yourself")
	ErrNoFriendRequest  = errors.New("no friend request from that user")
)

const DefaultFriendListLimit = 8

const (
	sqlUpsertFriendRequest = `INSERT INTO friend_requests (owner_id, friend_id, friend_name, status, sent_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner_id, friend_id) DO UPDATE
		 SET friend_name = EXCLUDED.friend_name, status = EXCLUDED.status, sent_at = EXCLUDED.sent_at`

	sqlDeleteFriendRequest = `DELETE FROM friend_requests WHERE owner_id = $1 AND friend_id = $2`

	sqlInsertFriendship = `INSERT INTO friendships (owner_id, friend_id, added_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (owner_id, friend_id) DO NOTHING`

	sqlSelectRequestStatus = `SELECT status FROM friend_requests WHERE owner_id = $1 AND friend_id = $2`

	sqlLockReceivedRequest = `SELECT status FROM friend_requests WHERE owner_id = $1 AND friend_id = $2 FOR UPDATE`

	sqlFriendshipExists = `SELECT EXISTS(SELECT 1 FROM friendships WHERE owner_id = $1 AND friend_id = $2)`

	sqlListFriendRequests = `SELECT fr.friend_id, fr.friend_name, fr.status, fr.sent_at, u.icon_url
		 FROM friend_requests fr
		 LEFT JOIN users u ON u.id = fr.friend_id
		 WHERE fr.owner_id = $1
		 ORDER BY fr.sent_at DESC`

	sqlListFriends = `SELECT f.friend_id, u.username, u.icon_url
		 FROM friendships f
		 LEFT JOIN users u ON u.id = f.friend_id
		 WHERE f.owner_id = $1
		 ORDER BY f.added_at DESC, f.friend_id
		 LIMIT $2`

	sqlRepairFriendships = `INSERT INTO friendships (owner_id, friend_id, added_at)
		 SELECT f.friend_id, f.owner_id, f.added_at FROM friendships f
		 WHERE NOT EXISTS (
		   SELECT 1 FROM friendships m WHERE m.owner_id = f.friend_id AND m.friend_id = f.owner_id
		 )
		 ON CONFLICT (owner_id, friend_id) DO NOTHING`

	sqlDeleteSupersededRequests = `DELETE FROM friend_requests r
		 WHERE EXISTS (
		   SELECT 1 FROM friendships f WHERE f.owner_id = r.owner_id AND f.friend_id = r.friend_id
		 )`

	sqlDeleteOrphanedRequests = `DELETE FROM friend_requests r
		 WHERE NOT EXISTS (
		   SELECT 1 FROM friend_requests m
		   WHERE m.owner_id = r.friend_id AND m.friend_id = r.owner_id AND m.status <> r.status
		 )`
)

// UsernameLookup resolves a user's current username.
type UsernameLookup interface {
	GetUsername(ctx context.Context, userID string) (string, error)
}

// RepairReport counts the rows a mirror repair pass touched.
type RepairReport struct {
	FriendshipsRestored int64 `json:"friendships_restored"`
	SupersededRequests  int64 `json:"superseded_requests"`
	OrphanedRequests    int64 `json:"orphaned_requests"`
}

func (r RepairReport) Total() int64 {
	return r.FriendshipsRestored + r.SupersededRequests + r.OrphanedRequests
}

type RelationshipService struct {
	db        DB
	usernames UsernameLookup
	now       func() time.Time
}

func NewRelationshipService(db DB, usernames UsernameLookup) *RelationshipService {
	return &RelationshipService{
		db:        db,
		usernames: usernames,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validatePair(a, b string) error {
	if a == "" || b == "" {
		return ErrInvalidArgument
	}
	if a == b {
		return ErrCannotFriendSelf
	}
	return nil
}

// SendRequest writes the mirrored request pair. A repeated send overwrites the previous pair.
func (s *RelationshipService) SendRequest(ctx context.Context, senderID, recipientID string) error {
	if err := validatePair(senderID, recipientID); err != nil {
		return err
	}

	senderName := s.lookupUsername(ctx, senderID)
	recipientName := s.lookupUsername(ctx, recipientID)
	sentAt := s.now()

	return withTx(ctx, s.db, "friend request", func(tx Tx) error {
		if _, err := tx.Exec(ctx, sqlUpsertFriendRequest,
			senderID, recipientID, recipientName, models.RequestStatusPending, sentAt,
		); err != nil {
			return fmt.Errorf("%w: writing sent request: %v", ErrWriteFailed, err)
		}
		if _, err := tx.Exec(ctx, sqlUpsertFriendRequest,
			recipientID, senderID, senderName, models.RequestStatusReceived, sentAt,
		); err != nil {
			return fmt.Errorf("%w: writing received request: %v", ErrWriteFailed, err)
		}
		return nil
	})
}

// AcceptRequest turns a received request into a mirrored friendship. Re-running it once
// the two are friends is a no-op; without a received request it fails with ErrNoFriendRequest.
func (s *RelationshipService) AcceptRequest(ctx context.Context, accepterID, requesterID string) error {
	if err := validatePair(accepterID, requesterID); err != nil {
		return err
	}

	addedAt := s.now()
	return withTx(ctx, s.db, "accept friend request", func(tx Tx) error {
		received, err := hasReceivedRequest(ctx, tx, accepterID, requesterID)
		if err != nil {
			return err
		}
		if !received {
			var friends bool
			if err := tx.QueryRow(ctx, sqlFriendshipExists, accepterID, requesterID).Scan(&friends); err != nil {
				return fmt.Errorf("checking friendship: %w", err)
			}
			if friends {
				return nil
			}
			return ErrNoFriendRequest
		}
		if _, err := tx.Exec(ctx, sqlInsertFriendship, accepterID, requesterID, addedAt); err != nil {
			return fmt.Errorf("%w: writing friendship: %v", ErrWriteFailed, err)
		}
		if _, err := tx.Exec(ctx, sqlInsertFriendship, requesterID, accepterID, addedAt); err != nil {
			return fmt.Errorf("%w: writing mirrored friendship: %v", ErrWriteFailed, err)
		}
		return deleteRequestPair(ctx, tx, accepterID, requesterID)
	})
}

// IgnoreRequest deletes both sides of a received request without creating a friendship.
func (s *RelationshipService) IgnoreRequest(ctx context.Context, ignorerID, requesterID string) error {
	if err := validatePair(ignorerID, requesterID); err != nil {
		return err
	}

	return withTx(ctx, s.db, "ignore friend request", func(tx Tx) error {
		received, err := hasReceivedRequest(ctx, tx, ignorerID, requesterID)
		if err != nil {
			return err
		}
		if !received {
			return ErrNoFriendRequest
		}
		return deleteRequestPair(ctx, tx, ignorerID, requesterID)
	})
}

// hasReceivedRequest locks ownerID's copy of the request from friendID and reports
// whether it is an incoming one.
func hasReceivedRequest(ctx context.Context, tx Tx, ownerID, friendID string) (bool, error) {
	var status models.RequestStatus
	err := tx.QueryRow(ctx, sqlLockReceivedRequest, ownerID, friendID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("reading friend request: %w", err)
	}
	return status == models.RequestStatusReceived, nil
}

func deleteRequestPair(ctx context.Context, tx Tx, a, b string) error {
	if _, err := tx.Exec(ctx, sqlDeleteFriendRequest, a, b); err != nil {
		return fmt.Errorf("%w: deleting friend request: %v", ErrWriteFailed, err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteFriendRequest, b, a); err != nil {
		return fmt.Errorf("%w: deleting mirrored friend request: %v", ErrWriteFailed, err)
	}
	return nil
}

// GetRelationship reports how subjectID relates to viewerID. A request row wins over a friendship row.
func (s *RelationshipService) GetRelationship(ctx context.Context, viewerID, subjectID string) (models.Relationship, error) {
	if viewerID == "" || subjectID == "" {
		return models.RelationshipNone, ErrInvalidArgument
	}
	if viewerID == subjectID {
		return models.RelationshipNone, nil
	}

	var status models.RequestStatus
	err := s.db.QueryRow(ctx, sqlSelectRequestStatus, viewerID, subjectID).Scan(&status)
	switch {
	case err == nil:
		if rel := models.RelationshipFromStatus(status); rel != models.RelationshipNone {
			return rel, nil
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return models.RelationshipNone, fmt.Errorf("getting friend request: %w", err)
	}

	var friends bool
	if err := s.db.QueryRow(ctx, sqlFriendshipExists, viewerID, subjectID).Scan(&friends); err != nil {
		return models.RelationshipNone, fmt.Errorf("checking friendship: %w", err)
	}
	if friends {
		return models.RelationshipFriends, nil
	}
	return models.RelationshipNone, nil
}

// ListFriendRequests returns every request stored under userID, newest first.
func (s *RelationshipService) ListFriendRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}

	rows, err := s.db.Query(ctx, sqlListFriendRequests, userID)
	if err != nil {
		return nil, fmt.Errorf("listing friend requests: %w", err)
	}
	defer rows.Close()

	requests := []models.FriendRequest{}
	for rows.Next() {
		var (
			req  models.FriendRequest
			icon *string
		)
		if err := rows.Scan(&req.FriendID, &req.FriendName, &req.Status, &req.SentAt, &icon); err != nil {
			return nil, fmt.Errorf("scanning friend request: %w", err)
		}
		req.OwnerID = userID
		req.IconURL = iconOrDefault(icon)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friend requests: %w", err)
	}
	return requests, nil
}

// ListFriends returns up to limit friends. Friends whose profile is gone are shown as Unknown.
func (s *RelationshipService) ListFriends(ctx context.Context, userID string, limit int) ([]models.FriendSummary, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = DefaultFriendListLimit
	}

	rows, err := s.db.Query(ctx, sqlListFriends, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	defer rows.Close()

	friends := []models.FriendSummary{}
	for rows.Next() {
		var (
			f        models.FriendSummary
			username *string
			icon     *string
		)
		if err := rows.Scan(&f.FriendID, &username, &icon); err != nil {
			return nil, fmt.Errorf("scanning friend: %w", err)
		}
		f.Username = models.UnknownUsername
		if username != nil {
			f.Username = *username
		}
		f.IconURL = iconOrDefault(icon)
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friends: %w", err)
	}
	return friends, nil
}

// RepairMirrors restores one-sided friendships and removes requests that lost their mirror
// or were superseded by a friendship.
func (s *RelationshipService) RepairMirrors(ctx context.Context) (RepairReport, error) {
	var report RepairReport
	err := withTx(ctx, s.db, "mirror repair", func(tx Tx) error {
		tag, err := tx.Exec(ctx, sqlRepairFriendships)
		if err != nil {
			return fmt.Errorf("restoring friendships: %w", err)
		}
		report.FriendshipsRestored = tag.RowsAffected()

		tag, err = tx.Exec(ctx, sqlDeleteSupersededRequests)
		if err != nil {
			return fmt.Errorf("deleting superseded requests: %w", err)
		}
		report.SupersededRequests = tag.RowsAffected()

		tag, err = tx.Exec(ctx, sqlDeleteOrphanedRequests)
		if err != nil {
			return fmt.Errorf("deleting orphaned requests: %w", err)
		}
		report.OrphanedRequests = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return RepairReport{}, err
	}
	return report, nil
}

func (s *RelationshipService) lookupUsername(ctx context.Context, userID string) string {
	if s.usernames == nil {
		return ""
	}
	name, err := s.usernames.GetUsername(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			logging.Warn("Failed to resolve username", map[string]interface{}{"error": err.Error(), "user_id": userID})
		}
		return ""
	}
	return name
}

func iconOrDefault(icon *string) string {
	if icon == nil || *icon == "" {
		return models.FallbackIcon
	}
	return *icon
}
