package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrWriteFailed     = errors.New("write failed")
	ErrUsernameTaken   = errors.New("username is already taken")
	ErrInvalidUsername = errors.New("username must be 1-32 characters with no whitespace")
)

const (
	maxUsernameLength = 32
	usernameIndexName = "users_username_key"

	// prefixSentinel sorts after every character a username can realistically hold.
	prefixSentinel = "\uf8ff"
)

const profileColumns = `id, username, email, xp, icon_url, settings, created_at, updated_at`

const (
	sqlInsertProfile = `INSERT INTO users (id, email, icon_url)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING ` + profileColumns

	sqlSelectProfile = `SELECT ` + profileColumns + ` FROM users WHERE id = $1`

	sqlSelectProfileByUsername = `SELECT ` + profileColumns + ` FROM users WHERE username = $1 AND username <> ''`

	sqlUsernameExists = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND username <> '')`

	sqlSearchUsernamePrefix = `SELECT id, username, icon_url FROM users
		 WHERE username COLLATE "C" >= $1 AND username COLLATE "C" < $2
		 ORDER BY username COLLATE "C"
		 LIMIT $3`

	sqlUpdateProfile = `UPDATE users SET
		 username = COALESCE($2, username),
		 email = COALESCE($3, email),
		 xp = COALESCE($4, xp),
		 icon_url = COALESCE($5, icon_url),
		 settings = COALESCE($6, settings),
		 updated_at = NOW()
		 WHERE id = $1`

	sqlAddXP = `UPDATE users SET xp = xp + $2, updated_at = NOW() WHERE id = $1 RETURNING xp`

	sqlSelectSettings = `SELECT settings FROM users WHERE id = $1`

	sqlUpdateSettings = `UPDATE users SET settings = $2, updated_at = NOW() WHERE id = $1`

	sqlSelectUsername = `SELECT username FROM users WHERE id = $1`
)

// LeaderboardObserver is told whenever a field shown on the leaderboard (XP,
// username or icon) may have changed.
type LeaderboardObserver interface {
	LeaderboardChanged(ctx context.Context, userID string)
}

type ProfileService struct {
	db          DBConn
	lazyCreate  bool
	searchLimit int
	observer    LeaderboardObserver
	randomIcon  func() string
}

type ProfileOption func(*ProfileService)

// WithLazyCreate makes EnsureProfile create a default profile when none exists.
func WithLazyCreate(enabled bool) ProfileOption {
	return func(s *ProfileService) { s.lazyCreate = enabled }
}

func WithSearchLimit(limit int) ProfileOption {
	return func(s *ProfileService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

func WithLeaderboardObserver(o LeaderboardObserver) ProfileOption {
	return func(s *ProfileService) { s.observer = o }
}

func NewProfileService(db DBConn, opts ...ProfileOption) *ProfileService {
	s := &ProfileService{
		db:          db,
		lazyCreate:  true,
		searchLimit: 20,
		randomIcon:  models.RandomIcon,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func scanProfile(row Row) (*models.Profile, error) {
	p := &models.Profile{}
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.XP, &p.IconURL, &p.Settings, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.Settings == nil {
		p.Settings = map[string]any{}
	}
	return p, nil
}

func (s *ProfileService) CreateProfile(ctx context.Context, userID, email string) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}

	p, err := scanProfile(s.db.QueryRow(ctx, sqlInsertProfile, userID, email, s.randomIcon()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}
	s.notifyLeaderboard(ctx, userID)
	return p, nil
}

func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}

	p, err := scanProfile(s.db.QueryRow(ctx, sqlSelectProfile, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// EnsureProfile loads the profile, creating a default one when lazy creation is enabled.
func (s *ProfileService) EnsureProfile(ctx context.Context, userID, email string) (*models.Profile, error) {
	p, err := s.GetProfile(ctx, userID)
	if !errors.Is(err, ErrProfileNotFound) || !s.lazyCreate {
		return p, err
	}

	logging.Info("Creating missing profile", map[string]interface{}{"user_id": userID})
	p, err = s.CreateProfile(ctx, userID, email)
	if errors.Is(err, ErrProfileExists) {
		// Lost a race with a concurrent create.
		return s.GetProfile(ctx, userID)
	}
	return p, err
}

// UpdateProfile applies the non-nil fields of update.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, update models.ProfileUpdate) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	if update.Username != nil {
		if err := ValidateUsername(*update.Username); err != nil {
			return err
		}
	}
	if update.XP != nil && *update.XP < 0 {
		return ErrInvalidArgument
	}
	if update.Empty() {
		return nil
	}

	var settings any
	if update.Settings != nil {
		settings = update.Settings
	}

	tag, err := s.db.Exec(ctx, sqlUpdateProfile,
		userID, update.Username, update.Email, update.XP, update.IconURL, settings,
	)
	if isUniqueViolation(err, usernameIndexName) {
		return ErrUsernameTaken
	}
	if err != nil {
		logging.Error("Failed to update profile", map[string]interface{}{"error": err.Error(), "user_id": userID})
		return fmt.Errorf("%w: updating profile: %v", ErrWriteFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}

	if update.XP != nil || update.Username != nil || update.IconURL != nil {
		s.notifyLeaderboard(ctx, userID)
	}
	return nil
}

func (s *ProfileService) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	if username == "" {
		return nil, ErrProfileNotFound
	}

	p, err := scanProfile(s.db.QueryRow(ctx, sqlSelectProfileByUsername, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile by username: %w", err)
	}
	return p, nil
}

func (s *ProfileService) UsernameExists(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, sqlUsernameExists, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking username existence: %w", err)
	}
	return exists, nil
}

// SearchByUsernamePrefix returns users whose username starts with term, in byte order.
func (s *ProfileService) SearchByUsernamePrefix(ctx context.Context, term string) ([]models.UserSummary, error) {
	if strings.TrimSpace(term) == "" {
		return []models.UserSummary{}, nil
	}

	rows, err := s.db.Query(ctx, sqlSearchUsernamePrefix, term, term+prefixSentinel, s.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching usernames: %w", err)
	}
	defer rows.Close()

	results := []models.UserSummary{}
	for rows.Next() {
		var u models.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.IconURL); err != nil {
			return nil, fmt.Errorf("scanning user summary: %w", err)
		}
		results = append(results, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usernames: %w", err)
	}
	return results, nil
}

// Register completes sign-up: it claims username for the user's profile,
// creating the profile first when needed.
func (s *ProfileService) Register(ctx context.Context, userID, email, username string) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	p, err := s.GetProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		p, err = s.CreateProfile(ctx, userID, email)
	}
	if err != nil {
		return nil, err
	}
	if p.Username == username {
		return p, nil
	}

	taken, err := s.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	update := models.ProfileUpdate{Username: &username}
	if email != "" && p.Email == "" {
		update.Email = &email
	}
	if err := s.UpdateProfile(ctx, userID, update); err != nil {
		return nil, err
	}

	p.Username = username
	if update.Email != nil {
		p.Email = email
	}
	return p, nil
}

func (s *ProfileService) GetSettings(ctx context.Context, userID string) (map[string]any, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}

	var settings map[string]any
	err := s.db.QueryRow(ctx, sqlSelectSettings, userID).Scan(&settings)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting settings: %w", err)
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return settings, nil
}

// SaveSettings replaces the whole settings map.
func (s *ProfileService) SaveSettings(ctx context.Context, userID string, settings map[string]any) error {
	if userID == "" {
		return ErrInvalidArgument
	}
	if settings == nil {
		settings = map[string]any{}
	}

	tag, err := s.db.Exec(ctx, sqlUpdateSettings, userID, settings)
	if err != nil {
		logging.Error("Failed to save settings", map[string]interface{}{"error": err.Error(), "user_id": userID})
		return fmt.Errorf("%w: saving settings: %v", ErrWriteFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// AddXP atomically adds delta to the stored XP and returns the new total.
func (s *ProfileService) AddXP(ctx context.Context, userID string, delta int64) (int64, error) {
	if userID == "" || delta < 0 {
		return 0, ErrInvalidArgument
	}

	var xp int64
	err := s.db.QueryRow(ctx, sqlAddXP, userID, delta).Scan(&xp)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		logging.Error("Failed to add XP", map[string]interface{}{"error": err.Error(), "user_id": userID, "delta": delta})
		return 0, fmt.Errorf("%w: adding xp: %v", ErrWriteFailed, err)
	}

	if delta != 0 {
		s.notifyLeaderboard(ctx, userID)
	}
	return xp, nil
}

func (s *ProfileService) GetUsername(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidArgument
	}

	var username string
	err := s.db.QueryRow(ctx, sqlSelectUsername, userID).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrProfileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting username: %w", err)
	}
	return username, nil
}

func (s *ProfileService) notifyLeaderboard(ctx context.Context, userID string) {
	if s.observer != nil {
		s.observer.LeaderboardChanged(ctx, userID)
	}
}

// ValidateUsername rejects empty names, names with whitespace, and names over 32 runes.
func ValidateUsername(username string) error {
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if unicode.IsSpace(r) {
			return ErrInvalidUsername
		}
	}
	return nil
}
