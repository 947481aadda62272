// Package cache keeps decoded raw table bodies in Redis between runs
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TableBody is a cached raw object body
type TableBody struct {
	Key       string        `json:"key"`
	ETag      string        `json:"etag"`
	Body      string        `json:"body"`
	UpdatedAt time.Time     `json:"updated_at"`
	TTL       time.Duration `json:"ttl"`
}

// Manager manages Redis-based caching of raw table bodies
type Manager struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

// NewManager creates a new cache manager. prefix is prepended to every key.
func NewManager(redisClient *redis.Client, prefix string, ttl time.Duration) *Manager {
	keyPrefix := "cache:table:"
	if prefix != "" {
		keyPrefix = prefix + ":" + keyPrefix
	}

	return &Manager{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
	}
}

// Get retrieves a cached body. Entries written for another ETag are misses.
func (c *Manager) Get(ctx context.Context, objectKey string) (*TableBody, error) {
	key := c.keyPrefix + objectKey

	data, err := c.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var entry TableBody
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, err
	}

	if entry.TTL > 0 && time.Since(entry.UpdatedAt) > entry.TTL {
		_ = c.redisClient.Del(ctx, key)
		return nil, nil
	}

	return &entry, nil
}

// Set stores a body
func (c *Manager) Set(ctx context.Context, entry TableBody) error {
	key := c.keyPrefix + entry.Key

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return c.redisClient.Set(ctx, key, data, entry.TTL).Err()
}

// Invalidate removes a cached body
func (c *Manager) Invalidate(ctx context.Context, objectKey string) error {
	return c.redisClient.Del(ctx, c.keyPrefix+objectKey).Err()
}

// GetBody returns the body cached for the object at the given ETag
func (c *Manager) GetBody(ctx context.Context, objectKey, etag string) (string, bool, error) {
	entry, err := c.Get(ctx, objectKey)
	if err != nil || entry == nil {
		return "", false, err
	}

	if entry.ETag != etag {
		return "", false, nil
	}

	return entry.Body, true, nil
}

// SetBody caches the body of the object at the given ETag
func (c *Manager) SetBody(ctx context.Context, objectKey, etag, body string) error {
	return c.Set(ctx, TableBody{
		Key:       objectKey,
		ETag:      etag,
		Body:      body,
		UpdatedAt: time.Now(),
		TTL:       c.ttl,
	})
}
