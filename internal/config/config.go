// Package config loads flowchat settings from a YAML file, an optional .env
// file and FLOWCHAT_* environment variables, in that order of precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the file looked up when no --config flag is given.
const DefaultPath = "flowchat.yaml"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config is the full flowchat configuration.
type Config struct {
	Backend Backend `yaml:"backend" envPrefix:"BACKEND_"`
	Gateway Gateway `yaml:"gateway" envPrefix:"GATEWAY_"`
	Store   Store   `yaml:"store" envPrefix:"STORE_"`
	Log     Log     `yaml:"log" envPrefix:"LOG_"`
}

// Backend describes the remote flow service.
type Backend struct {
	URL     string            `yaml:"url" env:"URL"`
	Token   string            `yaml:"token" env:"TOKEN"`
	Timeout time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	Headers map[string]string `yaml:"headers" env:"HEADERS"`
	BotID   string            `yaml:"bot_id" env:"BOT_ID"`
}

// Gateway configures the HTTP gateway.
type Gateway struct {
	Addr        string        `yaml:"addr" env:"ADDR"`
	Metrics     bool          `yaml:"metrics" env:"METRICS"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
}

// Store selects where conversations are persisted.
type Store struct {
	Kind          string `yaml:"kind" env:"KIND"`
	Path          string `yaml:"path" env:"PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	// Prefix is prepended verbatim to redis keys. Empty keeps the store default.
	Prefix string        `yaml:"prefix" env:"PREFIX"`
	TTL    time.Duration `yaml:"ttl" env:"TTL"`
	// Key is a base64 encoded 32 byte AES key. Empty disables encryption.
	Key         string   `yaml:"key" env:"KEY"`
	PIIPatterns []string `yaml:"pii_patterns" env:"PII_PATTERNS"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Backend: Backend{
			URL:     "http://localhost:8090",
			Timeout: 30 * time.Second,
			BotID:   "bot-1",
		},
		Gateway: Gateway{
			Addr:        ":8080",
			Metrics:     true,
			CallTimeout: 30 * time.Second,
		},
		Store: Store{
			Kind:      StoreFile,
			Path:      ".flowchat/conversations",
			RedisAddr: "localhost:6379",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path (when it exists), then .env, then the environment.
// A missing file is only an error when required is true.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "FLOWCHAT_"}); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.Store.Kind = strings.ToLower(strings.TrimSpace(cfg.Store.Kind))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Kind {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("store.kind %q: want memory, file or redis", c.Store.Kind))
	}
	if c.Store.Kind == StoreFile && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required for the file store"))
	}
	if c.Store.Kind == StoreRedis && c.Store.RedisAddr == "" {
		errs = append(errs, errors.New("store.redis_addr is required for the redis store"))
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, errors.New("backend.timeout must not be negative"))
	}
	if _, err := c.Store.EncryptionKey(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EncryptionKey decodes Key. It returns nil when encryption is off.
func (s Store) EncryptionKey() ([]byte, error) {
	if s.Key == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.Key)
	if err != nil {
		return nil, fmt.Errorf("store.key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("store.key: want 32 bytes, got %d", len(key))
	}
	return key, nil
}
