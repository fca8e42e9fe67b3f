package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dyluth/deck/internal/instance"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where deck looks for its configuration.
const DefaultPath = "deck.yml"

// Store backends
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Role change policies
const (
	RoleChangeOwner   = "owner"
	RoleChangeTrusted = "trusted"
)

// Environment variables that override deck.yml
const (
	EnvInstanceName = "DECK_INSTANCE_NAME"
	EnvRedisURL     = "REDIS_URL"
	EnvAddr         = "DECK_ADDR"
	EnvStoreBackend = "DECK_STORE_BACKEND"
	EnvSQLitePath   = "DECK_SQLITE_PATH"
)

// DeckConfig represents the top-level deck.yml configuration
type DeckConfig struct {
	Version  string        `yaml:"version"`
	Instance string        `yaml:"instance,omitempty"`
	Server   ServerConfig  `yaml:"server,omitempty"`
	Store    StoreConfig   `yaml:"store,omitempty"`
	Retry    RetryConfig   `yaml:"retry,omitempty"`
	Policy   PolicyConfig  `yaml:"policy,omitempty"`
	History  HistoryConfig `yaml:"history,omitempty"`
}

// ServerConfig specifies the HTTP and WebSocket listener
type ServerConfig struct {
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"` // "*" or empty allows any origin
}

// StoreConfig selects and configures the document backend
type StoreConfig struct {
	Backend    string `yaml:"backend,omitempty"` // "redis" (default) or "sqlite"
	RedisURL   string `yaml:"redis_url,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// RetryConfig tunes retries of conflicting slide compactions
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	BaseBackoff time.Duration `yaml:"base_backoff,omitempty"` // Doubled after each attempt
}

// PolicyConfig holds authorization settings
type PolicyConfig struct {
	RoleChange string `yaml:"role_change,omitempty"` // "owner" (default) or "trusted"
}

// HistoryConfig bounds client undo stacks
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *DeckConfig {
	c := &DeckConfig{Version: "1.0"}
	c.applyDefaults()
	return c
}

func (c *DeckConfig) applyDefaults() {
	if c.Instance == "" {
		c.Instance = instance.DefaultName
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3001"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendRedis
	}
	if c.Store.RedisURL == "" {
		c.Store.RedisURL = instance.DefaultRedisURL()
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "deck.db"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseBackoff == 0 {
		c.Retry.BaseBackoff = 100 * time.Millisecond
	}
	if c.Policy.RoleChange == "" {
		c.Policy.RoleChange = RoleChangeOwner
	}
	if c.History.MaxEntries == 0 {
		c.History.MaxEntries = 50
	}
}

// Validate applies defaults and performs strict validation on the configuration
func (c *DeckConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	c.applyDefaults()

	if err := instance.ValidateName(c.Instance); err != nil {
		return err
	}

	switch c.Store.Backend {
	case BackendRedis:
		if !strings.HasPrefix(c.Store.RedisURL, "redis://") && !strings.HasPrefix(c.Store.RedisURL, "rediss://") {
			return fmt.Errorf("store.redis_url must start with redis:// or rediss://, got '%s'", c.Store.RedisURL)
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("invalid store backend: %s (must be 'redis' or 'sqlite')", c.Store.Backend)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseBackoff < 0 {
		return fmt.Errorf("retry.base_backoff must not be negative, got %s", c.Retry.BaseBackoff)
	}

	if c.Policy.RoleChange != RoleChangeOwner && c.Policy.RoleChange != RoleChangeTrusted {
		return fmt.Errorf("invalid policy.role_change: %s (must be 'owner' or 'trusted')", c.Policy.RoleChange)
	}

	if c.History.MaxEntries < 1 {
		return fmt.Errorf("history.max_entries must be >= 1, got %d", c.History.MaxEntries)
	}

	for _, origin := range c.Server.AllowedOrigins {
		if origin == "" {
			return fmt.Errorf("server.allowed_origins must not contain empty entries")
		}
	}

	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *DeckConfig) ApplyEnv() {
	if v := os.Getenv(EnvInstanceName); v != "" {
		c.Instance = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Store.RedisURL = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvStoreBackend); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		c.Store.SQLitePath = v
	}
}

// Load reads deck.yml from the specified path, applies environment
// overrides and validates the result
func Load(path string) (*DeckConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config DeckConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// with environment overrides.
func LoadOrDefault(path string) (*DeckConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := &DeckConfig{Version: "1.0"}
		config.ApplyEnv()
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return config, nil
	}
	return Load(path)
}
