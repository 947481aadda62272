package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// RedisURL returns the connection URL of an in-memory server, as it would
// appear in the redis.url setting
func RedisURL(mr *miniredis.Miniredis) string {
	return "redis://" + mr.Addr() + "/0"
}

// NewRedis starts an in-memory Redis and a client connected through its URL.
// Both are closed when the test completes.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	opts, err := redis.ParseURL(RedisURL(mr))
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}
