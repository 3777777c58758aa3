// Package config loads and validates burrow.yml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when the BURROW_CONFIG environment variable is unset.
const DefaultPath = "burrow.yml"

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// PresenceConfig holds presence membership tracking settings.
type PresenceConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"` // How often stale sessions are evicted (default 10s)
	MaxAge        time.Duration `yaml:"max_age,omitempty"`        // Heartbeat age after which a session is considered gone (default 30s)
}

// BurrowConfig represents the top-level burrow.yml configuration.
type BurrowConfig struct {
	Instance    string         `yaml:"instance"`               // Instance name used to namespace Redis keys and channels
	Listen      string         `yaml:"listen,omitempty"`       // HTTP listen address (default :8080)
	JWTSecret   string         `yaml:"jwt_secret"`             // Shared secret for session token verification
	Redis       RedisConfig    `yaml:"redis"`
	Presence    PresenceConfig `yaml:"presence,omitempty"`
	SeedCatalog bool           `yaml:"seed_catalog,omitempty"` // Seed the default item catalog on startup
}

// Validate checks required fields and applies defaults.
func (c *BurrowConfig) Validate() error {
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	if c.Listen == "" {
		c.Listen = ":8080"
	}

	if c.Presence.SweepInterval <= 0 {
		c.Presence.SweepInterval = 10 * time.Second
	}

	if c.Presence.MaxAge <= 0 {
		c.Presence.MaxAge = 30 * time.Second
	}

	if c.Presence.MaxAge < c.Presence.SweepInterval {
		return fmt.Errorf("presence.max_age (%s) must not be shorter than presence.sweep_interval (%s)",
			c.Presence.MaxAge, c.Presence.SweepInterval)
	}

	return nil
}

// Load reads and validates burrow.yml from the specified path.
// An empty path falls back to BURROW_CONFIG, then to DefaultPath.
func Load(path string) (*BurrowConfig, error) {
	if path == "" {
		path = os.Getenv("BURROW_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config BurrowConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
