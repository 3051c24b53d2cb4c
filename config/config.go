package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBUrl       string
	FrontendURL string
	// Auth (tokens are issued upstream; we only verify)
	JWTSecret string
	JWKSUrl   string
	// Redis Configuration
	RedisURL      string
	RedisPassword string
	// Onboarding Engine Configuration
	OnboardingCacheTTL time.Duration
	// Transaction timeouts: how long we wait for a row lock, and how long the
	// whole transaction may run before it is aborted. Both must stay in
	// single-digit seconds so a stuck transaction cannot exhaust the pool.
	TxLockWaitTimeout time.Duration
	TxExecTimeout     time.Duration
	// Rate Limiting Configuration
	RateLimitWindowSeconds     int
	RateLimitGlobalThreshold   int
	RateLimitMutatingThreshold int
}

func LoadConfig() (*Config, error) {
	// Load .env file (only effective locally, ignored in production when absent)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBUrl:       getEnv("DATABASE_URL", ""),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWKSUrl:     getEnv("JWKS_URL", ""),
		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		// Onboarding Engine Configuration
		OnboardingCacheTTL: getEnvDuration("ONBOARDING_CACHE_TTL", time.Hour),
		TxLockWaitTimeout:  getEnvDuration("TX_LOCK_WAIT_TIMEOUT", 3*time.Second),
		TxExecTimeout:      getEnvDuration("TX_EXEC_TIMEOUT", 5*time.Second),
		// Rate Limiting Configuration (with sensible defaults)
		RateLimitWindowSeconds:     getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitGlobalThreshold:   getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 100),
		RateLimitMutatingThreshold: getEnvInt("RATE_LIMIT_MUTATING_THRESHOLD", 10),
	}

	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}

	if cfg.RedisURL == "" {
		log.Println("WARNING: REDIS_URL not configured. Onboarding cache disabled, rate limiting will use in-memory fallback.")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvDuration returns a duration environment variable (e.g. "5s", "1h")
// or fallback if not set/invalid
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
