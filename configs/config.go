package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Pinterest struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	APIURL       string
}

type Queue struct {
	Backend     string // asynq or memory
	MaxAttempts int
	BackoffBase time.Duration
	Concurrency int
}

type TokenRefresh struct {
	Schedule string
	Window   time.Duration
}

type Log struct {
	Level  string
	Format string
	File   string
}

type Config struct {
	Port         string
	PostgresURI  string
	RedisURI     string
	FrontendURL  string
	SecretKey    string
	CookieName   string
	Pinterest    Pinterest
	Queue        Queue
	TokenRefresh TokenRefresh
	R2           R2
	Log          Log
}

func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "3000"),
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		CookieName:  getEnv("COOKIE_NAME", "pinscheduler_session"),
		Pinterest: Pinterest{
			ClientID:     getEnv("PINTEREST_CLIENT_ID", ""),
			ClientSecret: getEnv("PINTEREST_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("PINTEREST_REDIRECT_URI", ""),
			APIURL:       getEnv("PINTEREST_API_URL", "https://api.pinterest.com/v5"),
		},
		Queue: Queue{
			Backend:     getEnv("QUEUE_BACKEND", "asynq"),
			MaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBase: getEnvDuration("QUEUE_BACKOFF_BASE", 60*time.Second),
			Concurrency: getEnvInt("QUEUE_CONCURRENCY", 10),
		},
		TokenRefresh: TokenRefresh{
			Schedule: getEnv("TOKEN_REFRESH_SCHEDULE", "@every 00h10m00s"),
			Window:   getEnvDuration("TOKEN_REFRESH_WINDOW", 30*time.Minute),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Log: Log{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			File:   getEnv("LOG_FILE", ""),
		},
	}
}

// ErrMissingSetting is wrapped by every Validate failure.
var ErrMissingSetting = errors.New("missing required setting")

// Validate checks the settings the process cannot start without. Pinterest
// credentials are checked lazily by the Pinterest client.
func (c *Config) Validate() error {
	if c.PostgresURI == "" {
		return fmt.Errorf("%w: POSTGRES_URI", ErrMissingSetting)
	}
	if c.Queue.Backend != "memory" && c.RedisURI == "" {
		return fmt.Errorf("%w: REDIS_URI", ErrMissingSetting)
	}
	switch len(c.SecretKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: SECRET_KEY must be 16, 24 or 32 bytes", ErrMissingSetting)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("%w: QUEUE_MAX_ATTEMPTS must be at least 1", ErrMissingSetting)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
