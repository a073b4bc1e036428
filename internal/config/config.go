package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the realtime backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	WSWriteTimeout   time.Duration
	WSPingInterval   time.Duration
	SSEKeepAlive     time.Duration
	SSEQueueCapacity int

	TaskReapInterval time.Duration
	TaskRetention    time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "aui"),
		AllowAnyOrigin:   false,
		ShutdownTimeout:  15 * time.Second,
		WSWriteTimeout:   10 * time.Second,
		WSPingInterval:   30 * time.Second,
		SSEKeepAlive:     30 * time.Second,
		SSEQueueCapacity: 64,
		TaskReapInterval: time.Minute,
		TaskRetention:    time.Hour,
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.WSWriteTimeout, err = durationFromEnv("WS_WRITE_TIMEOUT", cfg.WSWriteTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WSPingInterval, err = durationFromEnv("WS_PING_INTERVAL", cfg.WSPingInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SSEKeepAlive, err = durationFromEnv("SSE_KEEPALIVE_INTERVAL", cfg.SSEKeepAlive)
	if err != nil {
		return Config{}, err
	}
	cfg.SSEQueueCapacity, err = intFromEnv("SSE_QUEUE_CAPACITY", cfg.SSEQueueCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskReapInterval, err = durationFromEnv("TASK_REAP_INTERVAL", cfg.TaskReapInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskRetention, err = durationFromEnv("TASK_RETENTION", cfg.TaskRetention)
	if err != nil {
		return Config{}, err
	}

	if cfg.WSWriteTimeout < time.Second {
		return Config{}, fmt.Errorf("WS_WRITE_TIMEOUT must be at least 1s")
	}
	if cfg.WSPingInterval < time.Second {
		return Config{}, fmt.Errorf("WS_PING_INTERVAL must be at least 1s")
	}
	if cfg.SSEKeepAlive < time.Second {
		return Config{}, fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be at least 1s")
	}
	if cfg.SSEQueueCapacity <= 0 {
		return Config{}, fmt.Errorf("SSE_QUEUE_CAPACITY must be positive")
	}
	if cfg.TaskReapInterval < time.Second {
		return Config{}, fmt.Errorf("TASK_REAP_INTERVAL must be at least 1s")
	}
	if cfg.TaskRetention < 0 {
		return Config{}, fmt.Errorf("TASK_RETENTION must not be negative")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
