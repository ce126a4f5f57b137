package config

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log.level", cfg.Log.Level, "info"},
		{"log.format", cfg.Log.Format, "text"},
		{"store.driver", cfg.Store.Driver, DriverSQLite},
		{"store.redis.addr", cfg.Store.Redis.Addr, "localhost:6379"},
		{"store.redis.prefix", cfg.Store.Redis.Prefix, "choreo:"},
		{"store.redis.ttl", cfg.Store.Redis.TTL, time.Duration(0)},
		{"store.sqlite.path", cfg.Store.SQLite.Path, ".choreo/choreo.db"},
		{"sweep.interval", cfg.Sweep.Interval, time.Minute},
		{"metrics.addr", cfg.Metrics.Addr, ":2112"},
		{"compiler.cache_size", cfg.Compiler.CacheSize, 128},
		{"outbound.timeout", cfg.Outbound.Timeout, 10 * time.Second},
		{"lock.ttl", cfg.Lock.TTL, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHOREO_STORE_DRIVER", "redis")
	t.Setenv("CHOREO_STORE_REDIS_DB", "3")
	t.Setenv("CHOREO_STORE_REDIS_TTL", "24h")
	t.Setenv("CHOREO_SWEEP_INTERVAL", "15s")
	t.Setenv("CHOREO_LOG_FORMAT", "json")
	t.Setenv("CHOREO_STORE_MASK_SLOTS", "phone,email")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, 15*time.Second, cfg.Sweep.Interval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"phone", "email"}, cfg.Store.MaskSlots)
}

func TestLoad_ConfigFile(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
store:
  driver: sqlite
  sqlite:
    path: /var/lib/choreo/runs.db
  encryption:
    key: `+key(1)+`
    fallback_keys:
      - `+key(2)+`
lock:
  ttl: 1m
`)))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/choreo/runs.db", cfg.Store.SQLite.Path)
	assert.Equal(t, time.Minute, cfg.Lock.TTL)

	active, fallback, err := cfg.Store.Encryption.Keys()
	require.NoError(t, err)
	assert.Len(t, active, 32)
	require.Len(t, fallback, 1)
	assert.Equal(t, byte(2), fallback[0][0])
}

func TestValidate(t *testing.T) {
	base, err := Load(viper.New())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero interval", func(c *Config) { c.Sweep.Interval = 0 }, "sweep.interval"},
		{"negative lock ttl", func(c *Config) { c.Lock.TTL = -time.Second }, "lock.ttl"},
		{"negative redis ttl", func(c *Config) { c.Store.Redis.TTL = -time.Second }, "store.redis.ttl"},
		{"negative cache", func(c *Config) { c.Compiler.CacheSize = -1 }, "compiler.cache_size"},
		{"short key", func(c *Config) { c.Store.Encryption.Key = base64.StdEncoding.EncodeToString([]byte("short")) }, "32 bytes"},
		{"bad base64", func(c *Config) { c.Store.Encryption.Key = "%%%" }, "store.encryption.key"},
		{"fallback without key", func(c *Config) { c.Store.Encryption.FallbackKeys = []string{key(1)} }, "without an active key"},
		{"bad mask pattern", func(c *Config) { c.Store.MaskSlots = []string{"("} }, "store.mask_slots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := base
		cfg.Store.Driver = "nope"
		cfg.Sweep.Interval = 0
		err := cfg.Validate()
		assert.ErrorContains(t, err, "store.driver")
		assert.ErrorContains(t, err, "sweep.interval")
	})
}
