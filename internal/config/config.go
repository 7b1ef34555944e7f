package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	JWTSecret      string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPass      string
	DBName      string
	DBPort      string
	RedisURL    string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	RateLimitGlobal time.Duration
	RateLimitKudos  time.Duration

	SearchDebounce      time.Duration
	RealtimeChannel     string
	RealtimeWorkers     int
	LeaderboardCacheTTL time.Duration
	StreakLocation      *time.Location

	FeedResyncSchedule      string
	LeaderboardWarmSchedule string
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      os.Getenv("DB_HOST"),
		DBUser:      os.Getenv("DB_USER"),
		DBPass:      os.Getenv("DB_PASS"),
		DBName:      os.Getenv("DB_NAME"),
		DBPort:      os.Getenv("DB_PORT"),
		RedisURL:    os.Getenv("REDIS_URL"),

		MeiliSearchHost: os.Getenv("MEILISEARCH_HOST"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryCloudName:    os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:       os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:    os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "kudos_feed"),

		RealtimeChannel:         getEnv("REALTIME_CHANNEL", "feed_changes"),
		FeedResyncSchedule:      getEnv("FEED_RESYNC_SCHEDULE", "@every 5m"),
		LeaderboardWarmSchedule: getEnv("LEADERBOARD_WARM_SCHEDULE", "@every 1m"),
	}

	// Parsing durations
	var err error
	cfg.RateLimitGlobal, err = parseDuration(getEnv("RATE_LIMIT_GLOBAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_GLOBAL: %w", err)
	}
	cfg.RateLimitKudos, err = parseDuration(getEnv("RATE_LIMIT_KUDOS", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_KUDOS: %w", err)
	}
	cfg.SearchDebounce, err = parseDuration(getEnv("SEARCH_DEBOUNCE", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_DEBOUNCE: %w", err)
	}
	cfg.LeaderboardCacheTTL, err = parseDuration(getEnv("LEADERBOARD_CACHE_TTL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEADERBOARD_CACHE_TTL: %w", err)
	}

	cfg.RealtimeWorkers, err = strconv.Atoi(getEnv("REALTIME_WORKERS", "4"))
	if err != nil || cfg.RealtimeWorkers < 1 {
		return nil, fmt.Errorf("invalid REALTIME_WORKERS: %q", os.Getenv("REALTIME_WORKERS"))
	}

	cfg.StreakLocation, err = time.LoadLocation(getEnv("STREAK_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid STREAK_TIMEZONE: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
