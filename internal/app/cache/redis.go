// Package cache holds the Redis backed helpers: an advisory availability
// cache for the read side and a draw lock that keeps two settlement runs of
// the same draw apart.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const defaultPrefix = "lottery"

// RedisService wraps a Redis client.
type RedisService struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long an availability count is served from cache.
	TTL time.Duration
}

// NewRedisService connects and pings the server.
func NewRedisService(ctx context.Context, opts Options) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewFromClient(client, opts.Prefix, opts.TTL), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisService {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisService{client: client, prefix: prefix, ttl: ttl}
}

// Client returns the Redis client.
func (r *RedisService) Client() *redis.Client {
	return r.client
}

// Close releases the connection pool.
func (r *RedisService) Close() error {
	return r.client.Close()
}

func (r *RedisService) key(kind, name string) string {
	return r.prefix + ":" + kind + ":" + name
}

// =============================================================================
// Availability cache
// =============================================================================

// GetAvailable returns a cached availability count.
func (r *RedisService) GetAvailable(ctx context.Context, key string) (int, bool, error) {
	val, err := r.client.Get(ctx, r.key("avail", key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get availability %s: %w", key, err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetAvailable caches an availability count for the configured TTL.
func (r *RedisService) SetAvailable(ctx context.Context, key string, available int) error {
	if err := r.client.Set(ctx, r.key("avail", key), available, r.ttl).Err(); err != nil {
		return fmt.Errorf("set availability %s: %w", key, err)
	}
	return nil
}

// Invalidate drops a cached count.
func (r *RedisService) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key("avail", key)).Err(); err != nil {
		return fmt.Errorf("invalidate availability %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// Draw lock
// =============================================================================

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Acquire takes an expiring lock on key. acquired is false when another
// holder has it.
func (r *RedisService) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	lockKey := r.key("lock", key)
	ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.client, []string{lockKey}, token).Err()
	}
	return release, true, nil
}
