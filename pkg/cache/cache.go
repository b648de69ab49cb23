// Package cache stores small API responses between runs.
//
// Contributor counts are the main consumer: each one costs a rate-limited
// API call, so counts are cached for a configurable TTL and reused across
// fetch runs.
//
// # Backends
//
//   - [FileCache]: JSON entries under a local directory (default for the CLI)
//   - [RedisCache]: a shared Redis instance, for several collectors sharing
//     one token budget
//   - [NullCache]: caching disabled
//
// # Keys
//
// Build keys with a [Keyer] so backends shared by several API hosts do not
// collide:
//
//	k := cache.NewScopedKeyer(cache.NewDefaultKeyer(), "api.github.com:")
//	data, ok, err := c.Get(ctx, k.ContributorsKey("vercel", "next.js"))
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// Clearer is implemented by backends that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) (int, error)
}

// GetJSON decodes the cached value for key into v.
// It returns [ErrCacheMiss] when the key is absent or undecodable.
func GetJSON(ctx context.Context, c Cache, key string, v any) error {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || json.Unmarshal(data, v) != nil {
		return ErrCacheMiss
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
