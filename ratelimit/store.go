package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Store is a shared counter store.
type Store interface {
	// Incr atomically increments key and returns the new count. A key created
	// by this call expires after ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// incrScript increments a counter and sets its expiry on first use, so a
// crash between the two commands cannot leave a counter without a TTL.
var incrScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisClient is the subset of go-redis used by RedisStore.
type RedisClient interface {
	goredis.Scripter
	Ping(ctx context.Context) *goredis.StatusCmd
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	client RedisClient
}

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

// Incr implements Store.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
