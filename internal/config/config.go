package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config aggregates runtime configuration for the portal gateway.
type Config struct {
	App     AppConfig
	API     APIConfig
	Store   StoreConfig
	Session SessionConfig
	Retry   RetryConfig
	Logger  LoggerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name string
	Env  string
	Host string
	Port string
}

// APIConfig points at the REST backend.
type APIConfig struct {
	BaseURL                string
	ValidateTimeoutSeconds int
}

// StoreConfig selects where the session key/value layout is persisted.
type StoreConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTLMinutes    int
	SQLiteDSN     string
}

// SessionConfig configures the browser session cookie.
type SessionConfig struct {
	CookieName   string
	CookieSecure bool
}

// RetryConfig bounds retried REST calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelayMs int
	MaxDelayMs  int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "pharmacare-portal"),
			Env:  getEnv("APP_ENV", "development"),
			Host: getEnv("APP_HOST", "0.0.0.0"),
			Port: getEnv("APP_PORT", "3000"),
		},
		API: APIConfig{
			BaseURL:                getEnv("API_BASE_URL", "http://localhost:8080/api"),
			ValidateTimeoutSeconds: getEnvAsInt("API_VALIDATE_TIMEOUT_SECONDS", 15),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
			RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
			TTLMinutes:    getEnvAsInt("STORE_TTL_MINUTES", 7*24*60),
			SQLiteDSN:     getEnv("SQLITE_DSN", "file:pharmacare.db?cache=shared"),
		},
		Session: SessionConfig{
			CookieName:   getEnv("SESSION_COOKIE_NAME", "pc_sid"),
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
			BaseDelayMs: getEnvAsInt("RETRY_BASE_DELAY_MS", 1000),
			MaxDelayMs:  getEnvAsInt("RETRY_MAX_DELAY_MS", 4000),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// ValidateTimeout returns the session validation timeout.
func (a APIConfig) ValidateTimeout() time.Duration {
	if a.ValidateTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.ValidateTimeoutSeconds) * time.Second
}

// TTL returns how long idle session keys are kept.
func (s StoreConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

// BaseDelay returns the first retry delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the retry delay cap.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
