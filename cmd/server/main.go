package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/HammerMeetNail/levelup/internal/auth"
	"github.com/HammerMeetNail/levelup/internal/config"
	"github.com/HammerMeetNail/levelup/internal/database"
	"github.com/HammerMeetNail/levelup/internal/handlers"
	"github.com/HammerMeetNail/levelup/internal/jobs"
	"github.com/HammerMeetNail/levelup/internal/logging"
	"github.com/HammerMeetNail/levelup/internal/metrics"
	"github.com/HammerMeetNail/levelup/internal/middleware"
	"github.com/HammerMeetNail/levelup/internal/quiz"
	"github.com/HammerMeetNail/levelup/internal/services"
	"github.com/HammerMeetNail/levelup/internal/services/ai"
	"github.com/HammerMeetNail/levelup/migrations"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if level, ok := logging.ParseLevel(cfg.Server.LogLevel); ok {
		logger.SetLevel(level)
		logging.SetDefaultLevel(level)
	} else {
		logger.Warn("Unknown LOG_LEVEL; using info", map[string]interface{}{"value": cfg.Server.LogLevel})
	}

	logger.Info("Starting LevelUp server...", map[string]interface{}{
		"env": cfg.Server.Environment,
	})

	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(cfg.Database.DSN(), migrations.FS)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	// Redis backs the rank cache and rate limits; the API still works without it.
	var (
		redisClient redis.Cmdable
		redisHealth handlers.HealthChecker
		rankCache   services.Cache
	)
	redisDB, err := database.NewRedisDB(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable; rank cache and rate limits disabled", map[string]interface{}{
			"addr":  cfg.Redis.Addr(),
			"error": err.Error(),
		})
	} else {
		defer func() { _ = redisDB.Close() }()
		redisClient = redisDB.Client
		redisHealth = redisDB
		rankCache = services.NewRedisAdapter(redisDB.Client)
	}

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("creating token verifier: %w", err)
	}

	dbAdapter := services.NewPoolAdapter(db.Pool)
	rankingService := services.NewRankingService(dbAdapter, rankCache, cfg.Ranking.CacheTTL)
	profileService := services.NewProfileService(dbAdapter,
		services.WithLazyCreate(cfg.Profile.LazyCreate),
		services.WithSearchLimit(cfg.Profile.SearchLimit),
		services.WithLeaderboardObserver(rankingService),
	)
	relationshipService := services.NewRelationshipService(dbAdapter, profileService)
	discoveryService := services.NewDiscoveryService(profileService, relationshipService, rankingService)

	aiProvider := ai.NewProvider(cfg, m)
	quizManager := quiz.NewManager(aiProvider, profileService,
		quiz.WithDuration(cfg.Quiz.Duration),
		quiz.WithAward(cfg.Quiz.Award),
		quiz.WithRecorder(m),
	)

	jobs.StartMirrorRepairJob(ctx, cfg.Jobs.RepairInterval, relationshipService, m)

	healthHandler := handlers.NewHealthHandler(db, redisHealth)
	profileHandler := handlers.NewProfileHandler(profileService)
	userHandler := handlers.NewUserHandler(profileService, discoveryService)
	leaderboardHandler := handlers.NewLeaderboardHandler(rankingService)
	friendHandler := handlers.NewFriendHandler(relationshipService, profileService, m)
	quizHandler := handlers.NewQuizHandler(quizManager)

	authMiddleware := middleware.NewAuthMiddleware(verifier)
	securityHeaders := middleware.NewSecurityHeaders(cfg.Server.Secure)
	requestLogger := middleware.NewRequestLogger(logger, m)
	apiRateLimiter := middleware.NewAPIRateLimiter(redisClient)

	aiRateLimit := middleware.AIRateLimitForEnv(cfg.Server.Environment, cfg.AI.RateLimit)
	logger.Info("AI rate limit", map[string]interface{}{"limit_per_hour": aiRateLimit})
	aiRateLimiter := middleware.NewAIRateLimiter(redisClient, aiRateLimit)

	handler := newRouter(routerDeps{
		health:      healthHandler,
		profile:     profileHandler,
		users:       userHandler,
		leaderboard: leaderboardHandler,
		friends:     friendHandler,
		quiz:        quizHandler,
		auth:        authMiddleware,
		security:    securityHeaders,
		logger:      requestLogger,
		apiLimiter:  apiRateLimiter,
		aiLimiter:   aiRateLimiter,
		metrics:     m.Handler(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Grading retries the AI provider up to three times.
		WriteTimeout: 95 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", map[string]interface{}{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server.SetKeepAlivesEnabled(false)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
			"error": err.Error(),
		})
	}
	quizManager.Teardown(shutdownCtx)

	logger.Info("Server stopped", map[string]interface{}{"quiz_sessions_left": quizManager.Active()})
	return nil
}
