package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "animus.db", cfg.SQLitePath)
	assert.Equal(t, ":9180", cfg.HTTPAddr)
	assert.Equal(t, "@every 1m", cfg.SnapshotSchedule)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.ReplayWindow)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.WatchPlugins)
	assert.NotEmpty(t, cfg.PluginDirs)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ANIMUS_PLUGIN_DIRS", "/opt/plugins, /srv/plugins ,")
	t.Setenv("ANIMUS_WATCH_PLUGINS", "false")
	t.Setenv("ANIMUS_STORE", StoreRedis)
	t.Setenv("ANIMUS_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("ANIMUS_REDIS_DB", "3")
	t.Setenv("ANIMUS_HTTP_ADDR", ":8099")
	t.Setenv("ANIMUS_REQUEST_TIMEOUT", "750ms")
	t.Setenv("ANIMUS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/plugins", "/srv/plugins"}, cfg.PluginDirs)
	assert.False(t, cfg.WatchPlugins)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, ":8099", cfg.HTTPAddr)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("ANIMUS_REDIS_DB", "not-a-number")
	t.Setenv("ANIMUS_WATCH_PLUGINS", "maybe")
	t.Setenv("ANIMUS_SHUTDOWN_TIMEOUT", "soonish")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.RedisDB)
	assert.True(t, cfg.WatchPlugins)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store = "etcd" },
			wantErr: "unknown store backend",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Store = StoreSQLite
				c.SQLitePath = ""
			},
			wantErr: "ANIMUS_SQLITE_PATH",
		},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Store = StoreRedis
				c.RedisAddr = ""
			},
			wantErr: "ANIMUS_REDIS_ADDR",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "non-positive request timeout",
			mutate:  func(c *Config) { c.RequestTimeout = 0 },
			wantErr: "request timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Store:          StoreMemory,
				SQLitePath:     "animus.db",
				RedisAddr:      "localhost:6379",
				RequestTimeout: time.Second,
				LogLevel:       "info",
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn"}
	log := cfg.NewLogger()
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	// Unparseable levels fall back rather than crash the host.
	cfg = &Config{LogLevel: "shout"}
	assert.Equal(t, logrus.InfoLevel, cfg.NewLogger().GetLevel())
}
