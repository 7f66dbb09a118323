package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the segmenter server and CLI.
type Config struct {
	Server  ServerConfig
	Segment SegmentConfig
	Handles HandleConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	MaxUploadBytes int64
}

// SegmentConfig points at the external segmentation service.
type SegmentConfig struct {
	BaseURL string
	// Timeout bounds one request, including reading the result body. Zero disables it.
	Timeout time.Duration
}

type HandleConfig struct {
	Store    string
	RedisURL string
	TTL      time.Duration
}

type LogConfig struct {
	Level slog.Level
}

const (
	HandleStoreMemory = "memory"
	HandleStoreRedis  = "redis"

	DefaultSegmentURL = "http://localhost:8000"
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("SEGMENTER_PORT", 8080),
			Env:            envString("SEGMENTER_ENV", "development"),
			MaxUploadBytes: int64(envInt("SEGMENTER_MAX_UPLOAD_BYTES", 10<<20)),
		},
		Segment: SegmentConfig{
			BaseURL: strings.TrimRight(envString("SEGMENT_API_URL", DefaultSegmentURL), "/"),
			Timeout: envDuration("SEGMENT_TIMEOUT", 2*time.Minute),
		},
		Handles: HandleConfig{
			Store:    strings.ToLower(envString("HANDLE_STORE", HandleStoreMemory)),
			RedisURL: os.Getenv("REDIS_URL"),
			TTL:      envDuration("HANDLE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level: envLevel("LOG_LEVEL", slog.LevelInfo),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SEGMENTER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("SEGMENTER_MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}

	if err := ValidateServiceURL(c.Segment.BaseURL); err != nil {
		return err
	}
	if c.Segment.Timeout < 0 {
		return fmt.Errorf("SEGMENT_TIMEOUT must not be negative, got %s", c.Segment.Timeout)
	}

	switch c.Handles.Store {
	case HandleStoreMemory:
	case HandleStoreRedis:
		if c.Handles.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when HANDLE_STORE is redis")
		}
	default:
		return fmt.Errorf("HANDLE_STORE must be one of memory, redis; got %q", c.Handles.Store)
	}
	if c.Handles.TTL <= 0 {
		return fmt.Errorf("HANDLE_TTL must be positive, got %s", c.Handles.TTL)
	}

	return nil
}

// ValidateServiceURL checks that a segmentation service base URL is usable.
func ValidateServiceURL(u string) error {
	if u == "" {
		return fmt.Errorf("SEGMENT_API_URL is required")
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("SEGMENT_API_URL must start with http:// or https://, got %q", u)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
