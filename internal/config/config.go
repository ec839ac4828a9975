package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Auth     AuthConfig
	Profile  ProfileConfig
	Ranking  RankingConfig
	Quiz     QuizConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Secure      bool   // Send HSTS
	Environment string // "development", "production", "test"
	LogLevel    string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AIConfig struct {
	GeminiAPIKey string
	GeminiModel  string
	Stub         bool
	RateLimit    int64 // AI-backed requests per user per hour; 0 picks the environment default
}

type AuthConfig struct {
	Provider                string // "jwt" or "firebase"
	JWTSecret               string
	JWTIssuer               string
	FirebaseProjectID       string
	FirebaseCredentialsPath string
}

type ProfileConfig struct {
	// LazyCreate creates a default profile when the signed-in user has none.
	LazyCreate  bool
	SearchLimit int
}

type RankingConfig struct {
	CacheTTL time.Duration // 0 disables the Redis cache
}

type QuizConfig struct {
	Duration time.Duration
	Award    int64
}

type JobsConfig struct {
	RepairInterval time.Duration // 0 disables the mirror repair job
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvInt("SERVER_PORT", 8080),
			Secure:      getEnvBool("SERVER_SECURE", false),
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "levelup"),
			Password: getEnv("DB_PASSWORD", "levelup"),
			DBName:   getEnv("DB_NAME", "levelup"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		AI: AIConfig{
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
			Stub:         getEnvBool("AI_STUB", false),
			RateLimit:    int64(getEnvInt("AI_RATE_LIMIT", 0)),
		},
		Auth: AuthConfig{
			Provider:                strings.ToLower(getEnv("AUTH_PROVIDER", "jwt")),
			JWTSecret:               getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:               getEnv("AUTH_JWT_ISSUER", ""),
			FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Profile: ProfileConfig{
			LazyCreate:  getEnvBool("PROFILE_LAZY_CREATE", true),
			SearchLimit: getEnvInt("SEARCH_LIMIT", 20),
		},
		Ranking: RankingConfig{
			CacheTTL: getEnvDuration("RANK_CACHE_TTL", 30*time.Second),
		},
		Quiz: QuizConfig{
			Duration: getEnvDuration("QUIZ_DURATION", 120*time.Second),
			Award:    int64(getEnvInt("QUIZ_AWARD", 5000)),
		},
		Jobs: JobsConfig{
			RepairInterval: getEnvDuration("REPAIR_INTERVAL", 15*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Auth.Provider {
	case "jwt":
		if c.Auth.JWTSecret == "" && c.Server.Environment == "production" {
			return errors.New("AUTH_JWT_SECRET is required in production")
		}
	case "firebase":
		if c.Auth.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required for the firebase auth provider")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.Auth.Provider)
	}
	if c.Quiz.Duration < time.Second {
		return fmt.Errorf("QUIZ_DURATION must be at least 1s, got %s", c.Quiz.Duration)
	}
	if c.Quiz.Award < 0 {
		return fmt.Errorf("QUIZ_AWARD must not be negative, got %d", c.Quiz.Award)
	}
	if c.Profile.SearchLimit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be positive, got %d", c.Profile.SearchLimit)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
