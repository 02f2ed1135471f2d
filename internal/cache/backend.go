// Package cache holds the byte caches used for platform lookups and the
// shared per-channel message windows read by the render service.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Backend is a byte cache with per-entry TTL.
type Backend interface {
	// Get returns (value, found, error). An expired entry is not found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// Options selects and sizes a Backend.
type Options struct {
	// Backend is "memory" or "redis".
	Backend  string
	RedisURL string
	// Prefix namespaces redis keys.
	Prefix          string
	MaxEntries      int
	CleanupInterval time.Duration
}

// New returns the backend named by o.Backend.
func New(o Options) (Backend, error) {
	switch o.Backend {
	case "", "memory":
		if o.CleanupInterval <= 0 {
			o.CleanupInterval = time.Minute
		}
		return NewMemoryCache(o.MaxEntries, o.CleanupInterval), nil
	case "redis":
		prefix := o.Prefix
		if prefix == "" {
			prefix = "chatview:"
		}
		return NewRedisCache(o.RedisURL, prefix)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", o.Backend)
	}
}

// GetJSON loads key and decodes it into a new T.
func GetJSON[T any](ctx context.Context, b Backend, key string) (*T, bool, error) {
	data, ok, err := b.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, b Backend, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set(ctx, key, data, ttl)
}
