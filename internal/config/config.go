// Package config loads chatctl configuration from a YAML file overlaid with
// CHAT_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. CHAT_SERVER_ENDPOINT.
const EnvPrefix = "CHAT_"

// Config is the top-level command configuration.
type Config struct {
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	Auth   AuthConfig   `yaml:"auth"`
	Cache  CacheConfig  `yaml:"cache" envPrefix:"CACHE_"`
	Logger LoggerConfig `yaml:"logger" envPrefix:"LOG_"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	Endpoint          string        `yaml:"endpoint" env:"ENDPOINT"`         // WebSocket URL
	APIEndpoint       string        `yaml:"api_endpoint" env:"API_ENDPOINT"` // REST base; derived if empty
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	MaxAttempts       int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// AuthConfig holds credentials. The token is usually supplied as CHAT_TOKEN
// rather than written to the file.
type AuthConfig struct {
	Token string `yaml:"token" env:"TOKEN"`
}

// CacheConfig selects the conversation cache backend.
type CacheConfig struct {
	Driver        string        `yaml:"driver" env:"DRIVER"` // "memory", "sqlite", "redis"
	Path          string        `yaml:"path" env:"PATH"`     // sqlite file
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // text, json
	Output string `yaml:"output" env:"OUTPUT"` // stderr, stdout or a file path
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Endpoint:          "ws://localhost:8080/ws",
			RequestTimeout:    10 * time.Second,
			HeartbeatInterval: 20 * time.Second,
			MaxAttempts:       20,
		},
		Cache: CacheConfig{
			Driver: "sqlite",
			Path:   "chat-cache.db",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads path (a missing file is not an error), applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness, reporting every problem at
// once.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	switch {
	case cfg.Server.Endpoint == "":
		ve.Add("server.endpoint is required")
	case !strings.HasPrefix(cfg.Server.Endpoint, "ws://") && !strings.HasPrefix(cfg.Server.Endpoint, "wss://"):
		ve.Add("server.endpoint must be a ws:// or wss:// URL, got %q", cfg.Server.Endpoint)
	}
	if cfg.Server.RequestTimeout <= 0 {
		ve.Add("server.request_timeout must be > 0")
	}
	if cfg.Server.HeartbeatInterval <= 0 {
		ve.Add("server.heartbeat_interval must be > 0")
	}
	if cfg.Server.MaxAttempts <= 0 {
		ve.Add("server.max_attempts must be > 0")
	}

	switch cfg.Cache.Driver {
	case "memory":
	case "sqlite":
		if cfg.Cache.Path == "" {
			ve.Add("cache.path is required for the sqlite driver")
		}
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			ve.Add("cache.redis_addr is required for the redis driver")
		}
	default:
		ve.Add("cache.driver must be memory, sqlite or redis, got %q", cfg.Cache.Driver)
	}

	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
