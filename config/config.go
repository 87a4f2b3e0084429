// Package config loads storefront settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Storage backends.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config holds every setting. Defaults are provided via struct tags.
type Config struct {
	// APIURL is the backend base URL. ENV: STOREFRONT_API_URL
	APIURL string `env:"STOREFRONT_API_URL,default=http://localhost:3001/api"`
	// Timeout bounds a single HTTP attempt. ENV: STOREFRONT_TIMEOUT
	Timeout time.Duration `env:"STOREFRONT_TIMEOUT,default=10s"`

	// Storage selects the KV backend: file, memory or redis. ENV: STOREFRONT_STORAGE
	Storage string `env:"STOREFRONT_STORAGE,default=file"`
	// StateDir is where the file backend keeps its data. Empty means
	// <user config dir>/storefront. ENV: STOREFRONT_STATE_DIR
	StateDir string `env:"STOREFRONT_STATE_DIR"`
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// RedisPrefix for all keys. ENV: STOREFRONT_REDIS_PREFIX
	RedisPrefix string `env:"STOREFRONT_REDIS_PREFIX,default=storefront:"`

	// LogLevel is debug, info, warn or error. ENV: STOREFRONT_LOG_LEVEL
	LogLevel string `env:"STOREFRONT_LOG_LEVEL,default=warn"`
	// LogFormat is text or json. ENV: STOREFRONT_LOG_FORMAT
	LogFormat string `env:"STOREFRONT_LOG_FORMAT,default=text"`
}

// Load decodes the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("STOREFRONT_API_URL: %q is not an http(s) URL", c.APIURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("STOREFRONT_TIMEOUT: must be positive, got %s", c.Timeout))
	}
	switch c.Storage {
	case StorageFile, StorageMemory:
	case StorageRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR: required for redis storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("STOREFRONT_STORAGE: unknown backend %q", c.Storage))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("STOREFRONT_LOG_FORMAT: unknown format %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Dir returns the file backend directory.
func (c *Config) Dir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: state dir: %w", err)
	}
	return filepath.Join(base, "storefront"), nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("STOREFRONT_LOG_LEVEL: %w", err)
	}
	return l, nil
}

// Logger builds a logger writing to w in the configured format and level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
