package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "GATEWAY_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Log       LogConfig       `koanf:"log"`
	Bot       BotConfig       `koanf:"bot"`
	Worker    WorkerConfig    `koanf:"worker"`
	Identity  IdentityConfig  `koanf:"identity"`
	Cache     CacheConfig     `koanf:"cache"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int    `koanf:"max_conns"`
}

// RedisConfig configures the entity cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr       string `koanf:"addr"`
	Password   string `koanf:"password"`
	DB         int    `koanf:"db"`
	KeyPrefix  string `koanf:"key_prefix"`
	TTLSeconds int    `koanf:"ttl_seconds"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// BotConfig is the public bot. Its credentials never touch the database.
type BotConfig struct {
	PublicID    string `koanf:"public_id"`
	PublicKey   string `koanf:"public_key"`
	PublicToken string `koanf:"public_token"`
}

type WorkerConfig struct {
	URL            string `koanf:"url"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// IdentityConfig controls whitelabel credential lookups. CacheTTLSeconds of
// zero disables the in-memory credential cache.
type IdentityConfig struct {
	CacheTTLSeconds int    `koanf:"cache_ttl_seconds"`
	CacheSize       int    `koanf:"cache_size"`
	CredentialKey   string `koanf:"credential_key"`
}

type CacheConfig struct {
	WriteTimeoutSeconds int `koanf:"write_timeout_seconds"`
}

type TelemetryConfig struct {
	TracingEnabled bool   `koanf:"tracing_enabled"`
	ServiceName    string `koanf:"service_name"`
}

func (c RedisConfig) TTL() time.Duration          { return seconds(c.TTLSeconds) }
func (c WorkerConfig) Timeout() time.Duration     { return seconds(c.TimeoutSeconds) }
func (c IdentityConfig) CacheTTL() time.Duration  { return seconds(c.CacheTTLSeconds) }
func (c CacheConfig) WriteTimeout() time.Duration { return seconds(c.WriteTimeoutSeconds) }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Load builds the configuration from defaults, then any YAML files in
// configPaths, then GATEWAY_* environment variables. A .env file in the
// working directory is read into the environment first without replacing
// variables that are already set.
func Load(configPaths ...string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                 8080,
		"server.host":                 "0.0.0.0",
		"database.max_conns":          25,
		"redis.db":                    0,
		"redis.key_prefix":            "gateway:",
		"redis.ttl_seconds":           900,
		"log.level":                   "info",
		"log.format":                  "json",
		"worker.timeout_seconds":      3,
		"identity.cache_ttl_seconds":  0,
		"identity.cache_size":         1024,
		"cache.write_timeout_seconds": 5,
		"telemetry.tracing_enabled":   false,
		"telemetry.service_name":      "interaction-gateway",
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// Environment variables override everything. Only the first underscore
	// separates section from key, so GATEWAY_REDIS_KEY_PREFIX -> redis.key_prefix.
	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"_", ".", 1,
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every missing or malformed required setting.
func (c *Config) Validate() error {
	var errs []error

	if _, err := strconv.ParseUint(c.Bot.PublicID, 10, 64); err != nil {
		errs = append(errs, fmt.Errorf("bot.public_id must be a decimal snowflake, got %q", c.Bot.PublicID))
	}
	if key, err := hex.DecodeString(c.Bot.PublicKey); err != nil || len(key) != 32 {
		errs = append(errs, errors.New("bot.public_key must be 64 hex characters"))
	}
	if c.Bot.PublicToken == "" {
		errs = append(errs, errors.New("bot.public_token is required"))
	}

	if u, err := url.Parse(c.Worker.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("worker.url must be an absolute http(s) URL, got %q", c.Worker.URL))
	}
	if c.Worker.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("worker.timeout_seconds must be positive"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Identity.CacheTTLSeconds < 0 {
		errs = append(errs, errors.New("identity.cache_ttl_seconds must not be negative"))
	}
	if c.Identity.CacheTTLSeconds > 0 && c.Identity.CacheSize <= 0 {
		errs = append(errs, errors.New("identity.cache_size must be positive when the credential cache is enabled"))
	}

	return errors.Join(errs...)
}
