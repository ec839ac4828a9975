package main

import (
	"net/http"

	"github.com/HammerMeetNail/levelup/internal/handlers"
	"github.com/HammerMeetNail/levelup/internal/middleware"
)

type routerDeps struct {
	health      *handlers.HealthHandler
	profile     *handlers.ProfileHandler
	users       *handlers.UserHandler
	leaderboard *handlers.LeaderboardHandler
	friends     *handlers.FriendHandler
	quiz        *handlers.QuizHandler
	auth        *middleware.AuthMiddleware
	security    *middleware.SecurityHeaders
	logger      *middleware.RequestLogger
	apiLimiter  *middleware.RateLimiter
	aiLimiter   *middleware.RateLimiter
	metrics     http.Handler
}

func newRouter(d routerDeps) http.Handler {
	requireAuth := d.auth.RequireAuth
	requireAI := func(h http.HandlerFunc) http.Handler {
		return requireAuth(d.aiLimiter.Middleware(h))
	}

	mux := http.NewServeMux()

	// Health endpoints (no auth, no rate limit)
	mux.HandleFunc("GET /health", d.health.Health)
	mux.HandleFunc("GET /ready", d.health.Ready)
	mux.HandleFunc("GET /live", d.health.Live)
	mux.Handle("GET /metrics", d.metrics)

	// Profile
	mux.Handle("GET /api/profile", requireAuth(http.HandlerFunc(d.profile.Get)))
	mux.Handle("POST /api/profile", requireAuth(http.HandlerFunc(d.profile.Register)))
	mux.Handle("PUT /api/profile", requireAuth(http.HandlerFunc(d.profile.Update)))
	mux.Handle("GET /api/profile/settings", requireAuth(http.HandlerFunc(d.profile.GetSettings)))
	mux.Handle("PUT /api/profile/settings", requireAuth(http.HandlerFunc(d.profile.SaveSettings)))

	// Users
	mux.HandleFunc("GET /api/users/check", d.users.CheckUsername)
	mux.Handle("GET /api/users/search", requireAuth(http.HandlerFunc(d.users.Search)))
	mux.Handle("GET /api/users/{username}", requireAuth(http.HandlerFunc(d.users.View)))

	// Leaderboard
	mux.HandleFunc("GET /api/leaderboard", d.leaderboard.Top)
	mux.Handle("GET /api/leaderboard/rank", requireAuth(http.HandlerFunc(d.leaderboard.Rank)))

	// Friends
	mux.Handle("GET /api/friends", requireAuth(http.HandlerFunc(d.friends.List)))
	mux.Handle("GET /api/friends/requests", requireAuth(http.HandlerFunc(d.friends.Requests)))
	mux.Handle("POST /api/friends/requests", requireAuth(http.HandlerFunc(d.friends.SendRequest)))
	mux.Handle("PUT /api/friends/requests/{id}/accept", requireAuth(http.HandlerFunc(d.friends.AcceptRequest)))
	mux.Handle("PUT /api/friends/requests/{id}/ignore", requireAuth(http.HandlerFunc(d.friends.IgnoreRequest)))
	mux.Handle("GET /api/relationships/{id}", requireAuth(http.HandlerFunc(d.friends.Relationship)))

	// Quiz; the AI-backed steps share the hourly AI budget
	mux.Handle("POST /api/quiz/start", requireAI(d.quiz.Start))
	mux.Handle("GET /api/quiz", requireAuth(http.HandlerFunc(d.quiz.Get)))
	mux.Handle("POST /api/quiz/submit", requireAI(d.quiz.Submit))
	mux.Handle("POST /api/quiz/next", requireAI(d.quiz.Next))
	mux.Handle("POST /api/quiz/end", requireAuth(http.HandlerFunc(d.quiz.End)))

	// Build middleware chain (order matters: outermost last)
	var handler http.Handler = d.logger.Route(mux)
	handler = d.apiLimiter.Middleware(handler)
	handler = d.auth.Authenticate(handler)
	handler = d.security.Apply(handler)
	handler = d.logger.Apply(handler)
	return handler
}
