package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Judge API
	JudgeURL     string
	JudgeTimeout time.Duration

	// Duel lifecycle
	AcceptDeadline  time.Duration
	OngoingDeadline time.Duration
	SweepInterval   time.Duration
	AllowSelfDuel   bool

	// Rating
	KFactor     float64
	RatingSeed  int
	RatingFloor int

	// Problem selection
	RatingBucket    int
	RatingSpread    int
	WidenStep       int
	MaxWidenings    int
	ProblemReuseTTL time.Duration
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:      getDuration("JWT_EXPIRATION", 24*time.Hour),
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},

		JudgeURL:     getEnv("JUDGE_URL", "http://localhost:8090"),
		JudgeTimeout: getDuration("JUDGE_TIMEOUT", 10*time.Second),

		AcceptDeadline:  getDuration("DUEL_ACCEPT_DEADLINE", 5*time.Minute),
		OngoingDeadline: getDuration("DUEL_ONGOING_DEADLINE", time.Hour),
		SweepInterval:   getDuration("DUEL_SWEEP_INTERVAL", 15*time.Second),
		AllowSelfDuel:   getBool("DUEL_ALLOW_SELF", false),

		KFactor:     getFloat("DUEL_K_FACTOR", 32),
		RatingSeed:  getInt("DUEL_RATING_SEED", 1500),
		RatingFloor: getInt("DUEL_RATING_FLOOR", 0),

		RatingBucket:    getInt("DUEL_RATING_BUCKET", 100),
		RatingSpread:    getInt("DUEL_RATING_SPREAD", 300),
		WidenStep:       getInt("DUEL_WIDEN_STEP", 100),
		MaxWidenings:    getInt("DUEL_MAX_WIDENINGS", 3),
		ProblemReuseTTL: getDuration("DUEL_PROBLEM_REUSE_TTL", 7*24*time.Hour),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}
