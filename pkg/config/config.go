// Package config loads runtime configuration from ANIMUS_* environment
// variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Store backend names.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds all runtime configuration.
type Config struct {
	// PluginDirs are the directories scanned for plugin manifests.
	PluginDirs []string

	// WatchPlugins enables hot discovery of newly installed plugins.
	WatchPlugins bool

	// Store selects the persistence backend: memory, sqlite or redis.
	Store string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// Redis connection settings for the redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SnapshotSchedule is a cron expression for periodic state snapshots.
	// Empty disables the scheduler.
	SnapshotSchedule string

	// HTTP settings for the health/metrics/introspection server.
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// RequestTimeout is the default bus request/response timeout.
	RequestTimeout time.Duration

	// ReplayWindow is how long the bus suppresses replayed message ids.
	ReplayWindow time.Duration

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		PluginDirs:       getEnvList("ANIMUS_PLUGIN_DIRS", defaultPluginDirs()),
		WatchPlugins:     getEnvBool("ANIMUS_WATCH_PLUGINS", true),
		Store:            getEnv("ANIMUS_STORE", StoreSQLite),
		SQLitePath:       getEnv("ANIMUS_SQLITE_PATH", "animus.db"),
		RedisAddr:        getEnv("ANIMUS_REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("ANIMUS_REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("ANIMUS_REDIS_DB", 0),
		SnapshotSchedule: getEnv("ANIMUS_SNAPSHOT_SCHEDULE", "@every 1m"),
		HTTPAddr:         getEnv("ANIMUS_HTTP_ADDR", ":9180"),
		ShutdownTimeout:  getEnvDuration("ANIMUS_SHUTDOWN_TIMEOUT", 30*time.Second),
		RequestTimeout:   getEnvDuration("ANIMUS_REQUEST_TIMEOUT", 5*time.Second),
		ReplayWindow:     getEnvDuration("ANIMUS_REPLAY_WINDOW", time.Minute),
		LogLevel:         getEnv("ANIMUS_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	if c.Store == StoreSQLite && c.SQLitePath == "" {
		return fmt.Errorf("sqlite store requires ANIMUS_SQLITE_PATH")
	}
	if c.Store == StoreRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis store requires ANIMUS_REDIS_ADDR")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

// NewLogger builds the runtime logger from the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}

func defaultPluginDirs() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "/tmp"
	}
	return []string{
		"./plugins",
		homeDir + "/.animus/plugins",
		"/etc/animus/plugins",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
