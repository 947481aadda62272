// Package redis provides Redis client configuration
package redis

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Define static errors
var (
	ErrInvalidCacheTTL = errors.New("redis cache TTL must not be negative")
)

// Config holds Redis client configuration. An empty URL disables the table
// cache and leader election.
type Config struct {
	URL      string        `yaml:"url"`
	Prefix   string        `yaml:"prefix" default:"mlbdfs"`
	CacheTTL time.Duration `yaml:"cacheTTL" default:"24h"`
}

// Enabled reports whether a Redis server is configured
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.CacheTTL < 0 {
		return ErrInvalidCacheTTL
	}

	if c.Prefix == "" {
		c.Prefix = "mlbdfs"
	}

	if c.URL == "" {
		return nil
	}

	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}

	return nil
}

// PrefixKey adds the configured prefix to a Redis key
func (c *Config) PrefixKey(key string) string {
	if c.Prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", c.Prefix, key)
}

// NewClient connects to the configured server
func (c *Config) NewClient() (*redis.Client, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return redis.NewClient(opts), nil
}
