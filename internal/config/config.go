package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	DatabaseURL string
	RedisURL    string

	Kafka   KafkaConfig
	Casdoor CasdoorConfig
	Canvas  CanvasConfig
	Sync    SyncConfig
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Cert         string
	Organization string
	Application  string
}

// CanvasConfig carries the OAuth client-credentials used to post scores back
// to the LMS grade book.
type CanvasConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// SyncConfig tunes the grade-passback worker.
type SyncConfig struct {
	Concurrency  int           // concurrent passback handlers
	MaxAttempts  int           // delivery attempts per job, retries included
	InitialDelay time.Duration // first backoff interval, doubles per retry
}

// LoadConfig reads .env (when present) and the environment into a Config.
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables win in production
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		Kafka: KafkaConfig{
			Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "localhost:9092")),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "anatoview-grade-sync"),
		},
		Casdoor: CasdoorConfig{
			Endpoint:     os.Getenv("CASDOOR_ENDPOINT"),
			ClientID:     os.Getenv("CASDOOR_CLIENT_ID"),
			ClientSecret: os.Getenv("CASDOOR_CLIENT_SECRET"),
			Cert:         os.Getenv("CASDOOR_CERT"),
			Organization: os.Getenv("CASDOOR_ORGANIZATION"),
			Application:  os.Getenv("CASDOOR_APPLICATION"),
		},
		Canvas: CanvasConfig{
			TokenURL:     os.Getenv("CANVAS_TOKEN_URL"),
			ClientID:     os.Getenv("CANVAS_CLIENT_ID"),
			ClientSecret: os.Getenv("CANVAS_CLIENT_SECRET"),
			Timeout:      getEnvDuration("CANVAS_TIMEOUT", 15*time.Second),
		},
		Sync: SyncConfig{
			Concurrency:  getEnvInt("SYNC_CONCURRENCY", 3),
			MaxAttempts:  getEnvInt("SYNC_MAX_ATTEMPTS", 3),
			InitialDelay: getEnvDuration("SYNC_INITIAL_DELAY", 2*time.Second),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Sync.Concurrency < 1 {
		cfg.Sync.Concurrency = 1
	}
	if cfg.Sync.MaxAttempts < 1 {
		cfg.Sync.MaxAttempts = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
