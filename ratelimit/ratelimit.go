package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimitExceeded is returned when an identity has gone over its
// allowed number of attempts. Any other error from Check is an
// infrastructure failure, never a policy rejection.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Store is the slice of key-value store operations the limiter needs.
// RedisStore satisfies it; tests substitute an in-memory fake.
type Store interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Policy describes a fixed-window limit: at most Limit attempts per Window,
// with a Block-long lockout once the limit is breached.
type Policy struct {
	Limit  int64
	Window time.Duration
	Block  time.Duration
}

// DefaultPolicy applies when a Policy field is left at its zero value.
var DefaultPolicy = Policy{
	Limit:  10,
	Window: time.Minute,
	Block:  5 * time.Minute,
}

// Policies for the two rate-limited actions in the subscription pipeline.
var (
	SubscribePolicy = Policy{Limit: 3, Window: 5 * time.Minute, Block: 30 * time.Minute}
	VerifyPolicy    = Policy{Limit: 5, Window: 5 * time.Minute, Block: 30 * time.Minute}
)

func blockKey(key string) string {
	return key + ":blocked"
}

// Check applies the fixed-window counter at key. The first attempt in a
// window starts the window's expiry clock; an attempt past the limit sets a
// block sentinel that bars the identity for the block duration, independent
// of the counter's own expiry. A set block sentinel rejects attempts
// outright, before the counter is touched.
func Check(ctx context.Context, store Store, key string, p Policy) error {
	if p.Limit == 0 {
		p.Limit = DefaultPolicy.Limit
	}
	if p.Window == 0 {
		p.Window = DefaultPolicy.Window
	}
	if p.Block == 0 {
		p.Block = DefaultPolicy.Block
	}
	blocked, err := store.Exists(ctx, blockKey(key))
	if err != nil {
		return err
	}
	if blocked {
		return ErrRateLimitExceeded
	}
	count, err := store.Incr(ctx, key)
	if err != nil {
		return err
	}
	if count == 1 {
		if err := store.Expire(ctx, key, p.Window); err != nil {
			return err
		}
	}
	if count > p.Limit {
		if err := store.SetWithTTL(ctx, blockKey(key), "1", p.Block); err != nil {
			return err
		}
		return ErrRateLimitExceeded
	}
	return nil
}
