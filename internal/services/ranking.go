package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/models"
)

const (
	DefaultLeaderboardSize = 5
	MaxLeaderboardSize     = 100

	// rankingGenerationKey versions every cached entry. Bumping it orphans
	// the old entries, which then age out on their own TTL.
	rankingGenerationKey = "ranking:generation"
)

const (
	sqlTopByXP = `SELECT id, username, xp, icon_url FROM users
		 ORDER BY xp DESC, id ASC
		 LIMIT $1`

	sqlRankByID = `SELECT rank FROM (
		   SELECT id, ROW_NUMBER() OVER (ORDER BY xp DESC, id ASC) AS rank
		   FROM users
		 ) ranked
		 WHERE id = $1`
)

type RankingService struct {
	db    DBConn
	cache Cache
	ttl   time.Duration
}

// NewRankingService builds the ranking engine. A nil cache or a zero ttl disables caching.
func NewRankingService(db DBConn, cache Cache, ttl time.Duration) *RankingService {
	if ttl <= 0 {
		cache = nil
	}
	return &RankingService{db: db, cache: cache, ttl: ttl}
}

// GetTopByXP returns at most n users ordered by XP, ties broken by ID.
func (s *RankingService) GetTopByXP(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	if n > MaxLeaderboardSize {
		n = MaxLeaderboardSize
	}

	gen, cached := s.generation(ctx)
	key := rankingTopKey(gen, n)
	if cached {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var entries []models.LeaderboardEntry
			if err := json.Unmarshal([]byte(raw), &entries); err == nil && len(entries) <= n {
				return entries, nil
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			logging.Warn("Ranking cache read failed", map[string]interface{}{"error": err.Error()})
		}
	}

	rows, err := s.db.Query(ctx, sqlTopByXP, n)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LeaderboardEntry, 0, n)
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.XP, &e.IconURL); err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		if e.IconURL == "" {
			e.IconURL = models.FallbackIcon
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard: %w", err)
	}
	if len(entries) > n {
		entries = entries[:n]
	}

	if cached {
		if data, err := json.Marshal(entries); err == nil {
			s.cacheSet(ctx, key, string(data))
		}
	}
	return entries, nil
}

// GetRankByID returns the user's 1-based position in the leaderboard, or 0 when absent.
func (s *RankingService) GetRankByID(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidArgument
	}

	gen, cached := s.generation(ctx)
	key := rankingRankKey(gen, userID)
	if cached {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			if rank, err := strconv.Atoi(raw); err == nil {
				return rank, nil
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			logging.Warn("Ranking cache read failed", map[string]interface{}{"error": err.Error()})
		}
	}

	var rank int64
	err := s.db.QueryRow(ctx, sqlRankByID, userID).Scan(&rank)
	if errors.Is(err, pgx.ErrNoRows) {
		rank = 0
	} else if err != nil {
		return 0, fmt.Errorf("querying rank: %w", err)
	}

	if cached {
		s.cacheSet(ctx, key, strconv.FormatInt(rank, 10))
	}
	return int(rank), nil
}

// LeaderboardChanged moves the cache to a new generation, since one change
// can shift every rank and any cached list.
func (s *RankingService) LeaderboardChanged(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, rankingGenerationKey); err != nil {
		logging.Warn("Ranking cache invalidation failed", map[string]interface{}{"error": err.Error(), "user_id": userID})
	}
}

// generation returns the current cache generation. A read that started
// before an invalidation writes under the old generation, so its result is
// never served afterwards. The second value is false when caching is off or
// the generation cannot be read.
func (s *RankingService) generation(ctx context.Context) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	gen, err := s.cache.Get(ctx, rankingGenerationKey)
	if errors.Is(err, ErrCacheMiss) {
		return "0", true
	}
	if err != nil {
		logging.Warn("Ranking cache read failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	return gen, true
}

func rankingTopKey(gen string, n int) string {
	return "ranking:" + gen + ":top:" + strconv.Itoa(n)
}

func rankingRankKey(gen, userID string) string {
	return "ranking:" + gen + ":rank:" + userID
}

func (s *RankingService) cacheSet(ctx context.Context, key, value string) {
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		logging.Warn("Ranking cache write failed", map[string]interface{}{"error": err.Error(), "key": key})
	}
}
