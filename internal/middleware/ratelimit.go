package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HammerMeetNail/levelup/internal/handlers"
	"github.com/HammerMeetNail/levelup/internal/logging"
)

// windowCounter counts hits in a fixed window and returns the running total.
type windowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	client redis.Cmdable
}

func (c redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

type RateLimiter struct {
	counter  windowCounter
	limit    int64
	window   time.Duration
	prefix   string
	keyFunc  func(*http.Request) string
	failOpen bool
	now      func() time.Time
}

// NewRateLimiter limits each key to limit requests per window. When Redis is
// nil or unreachable the request is allowed if failOpen is set.
func NewRateLimiter(client redis.Cmdable, limit int64, window time.Duration, prefix string, keyFunc func(*http.Request) string, failOpen bool) *RateLimiter {
	rl := &RateLimiter{
		limit:    limit,
		window:   window,
		prefix:   prefix,
		keyFunc:  keyFunc,
		failOpen: failOpen,
		now:      time.Now,
	}
	if client != nil {
		rl.counter = redisCounter{client: client}
	}
	if rl.keyFunc == nil {
		rl.keyFunc = PrincipalKey
	}
	return rl
}

// PrincipalKey keys by signed-in user, falling back to the client IP.
func PrincipalKey(r *http.Request) string {
	if principal := handlers.GetPrincipalFromContext(r.Context()); principal != nil {
		return "user:" + principal.UserID
	}
	return "ip:" + GetClientIP(r)
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.counter == nil || rl.limit <= 0 {
			if rl.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
			return
		}

		windowStart := rl.now().Truncate(rl.window)
		resetAt := windowStart.Add(rl.window)
		key := fmt.Sprintf("%s%s:%d", rl.prefix, rl.keyFunc(r), windowStart.Unix())

		count, err := rl.counter.Incr(r.Context(), key, rl.window)
		if err != nil {
			logging.Warn("Rate limiter unavailable", map[string]interface{}{
				"error":  err.Error(),
				"prefix": rl.prefix,
			})
			if rl.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
			return
		}

		remaining := rl.limit - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

		if count > rl.limit {
			retryAfter := int64(resetAt.Sub(rl.now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// AIRateLimitForEnv picks the hourly AI request budget. An explicit
// AI_RATE_LIMIT wins; otherwise production is stricter than development.
func AIRateLimitForEnv(environment string, configured int64) int64 {
	if configured > 0 {
		return configured
	}
	if environment == "production" {
		return 60
	}
	return 1000
}

// NewAIRateLimiter limits quiz endpoints that call the AI provider.
func NewAIRateLimiter(client redis.Cmdable, limit int64) *RateLimiter {
	return NewRateLimiter(client, limit, time.Hour, "ratelimit:ai:", PrincipalKey, true)
}

// NewAPIRateLimiter is the general per-client API budget.
func NewAPIRateLimiter(client redis.Cmdable) *RateLimiter {
	return NewRateLimiter(client, 300, time.Minute, "ratelimit:api:", PrincipalKey, true)
}
