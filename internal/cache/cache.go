// Package cache provides the short-lived read-through cache shared by the
// ledger, the idempotency guard and the rail client. Instances are built once
// at startup and injected; nothing in the process holds a package-level cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented TTL cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// GetJSON reads key and decodes it into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst any) error {
	if c == nil {
		return ErrMiss
	}
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// Key joins a namespace and an id, e.g. Key("account", id) -> "wallet:account:<id>".
func Key(namespace, id string) string {
	return "wallet:" + namespace + ":" + id
}
