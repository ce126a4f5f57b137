// Package config loads choreo runtime configuration from defaults, an
// optional YAML file and CHOREO_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// EncryptionConfig holds base64 encoded AES-256 keys. An empty Key disables
// slot encryption.
type EncryptionConfig struct {
	Key          string   `mapstructure:"key"`
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

type StoreConfig struct {
	Driver     string           `mapstructure:"driver"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	MaskSlots  []string         `mapstructure:"mask_slots"`
}

// Config holds all runtime configuration.
type Config struct {
	Log   LogConfig   `mapstructure:"log"`
	Store StoreConfig `mapstructure:"store"`
	Sweep struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"sweep"`
	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
	Compiler struct {
		CacheSize int `mapstructure:"cache_size"`
	} `mapstructure:"compiler"`
	Outbound struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"outbound"`
	Lock struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"lock"`
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "choreo:")
	v.SetDefault("store.redis.ttl", time.Duration(0))
	v.SetDefault("store.sqlite.path", ".choreo/choreo.db")
	v.SetDefault("store.encryption.key", "")
	v.SetDefault("store.encryption.fallback_keys", []string{})
	v.SetDefault("store.mask_slots", []string{})
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("metrics.addr", ":2112")
	v.SetDefault("compiler.cache_size", 128)
	v.SetDefault("outbound.timeout", 10*time.Second)
	v.SetDefault("lock.ttl", 30*time.Second)
}

// Load applies defaults and the CHOREO_ environment to v, unmarshals it and
// validates the result. A config file, if any, must already be read into v.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("CHOREO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory, DriverRedis, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q (want memory, redis or sqlite)", c.Store.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Store.Redis.TTL < 0 {
		errs = append(errs, errors.New("store.redis.ttl: must not be negative"))
	}
	for key, d := range map[string]time.Duration{
		"sweep.interval":   c.Sweep.Interval,
		"outbound.timeout": c.Outbound.Timeout,
		"lock.ttl":         c.Lock.TTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive (got %s)", key, d))
		}
	}
	if c.Compiler.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("compiler.cache_size: must not be negative (got %d)", c.Compiler.CacheSize))
	}
	if _, _, err := c.Store.Encryption.Keys(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.Store.MaskSlots {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("store.mask_slots: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Keys decodes the active and fallback keys. active is nil when encryption
// is disabled.
func (e EncryptionConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if e.Key == "" {
		if len(e.FallbackKeys) > 0 {
			return nil, nil, errors.New("store.encryption.fallback_keys: set without an active key")
		}
		return nil, nil, nil
	}
	if active, err = decodeKey("store.encryption.key", e.Key); err != nil {
		return nil, nil, err
	}
	for i, k := range e.FallbackKeys {
		key, err := decodeKey(fmt.Sprintf("store.encryption.fallback_keys[%d]", i), k)
		if err != nil {
			return nil, nil, err
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(name, s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s: must decode to 32 bytes (got %d)", name, len(key))
	}
	return key, nil
}
