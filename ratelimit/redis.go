package ratelimit

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect and per-command timeouts against the key-value store.
const redisTimeout = 5 * time.Second

// RedisStore adapts a go-redis client to the Store interface. The client
// is safe for concurrent use and is constructed once at process start,
// then shared by every request (see main).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the key-value store named by REDIS_URL and
// verifies the connection with a ping before returning. An unset REDIS_URL
// or a failed ping returns an error rather than a half-initialized handle.
func NewRedisStore(ctx context.Context) (*RedisStore, error) {
	rawURL := os.Getenv("REDIS_URL")
	if len(rawURL) == 0 {
		return nil, errors.New("environment variable REDIS_URL must be set")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = redisTimeout
	opts.ReadTimeout = redisTimeout
	opts.WriteTimeout = redisTimeout
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	log.Printf("Connected to Redis at %s", opts.Addr)
	return &RedisStore{client: client}, nil
}

// Incr atomically increments the counter at key.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

// Expire sets the time-to-live for key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

// SetWithTTL writes value at key with the given time-to-live.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
