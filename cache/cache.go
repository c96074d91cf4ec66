// Package cache defines the byte-oriented key/value contract used for
// directory lookups. cache/redis provides the go-redis implementation.
package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

// Store is a TTL key/value store. Get and Delete return ErrNotFound for
// absent keys; a zero ttl on Set means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
