package services

import (
	"context"
	"time"
)

// KVStore is the quota-store capability the abuse engine needs: atomic
// counters, TTL expiry and plain get/set. Every component takes this
// interface rather than a concrete client so that ban state, counters and
// trap registrations can be exercised against fakes in tests, and so the
// fail-open behaviour on store outages is testable at all.
//
// All operations are network calls and may fail; callers in the request
// path must treat failure as "no signal", never as a reason to block.
type KVStore interface {
	// Get returns the value at key, or "" when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value with the given expiry. A zero expiration persists the key.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Incr atomically increments the integer at key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire (re)sets the TTL on an existing key.
	Expire(ctx context.Context, key string, expiration time.Duration) error

	// TTL reports the remaining lifetime of key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Del removes the given keys.
	Del(ctx context.Context, keys ...string) error
}
