// Package lookupcache caches handle -> account id resolution in Redis.
package lookupcache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	xgraph "github.com/anatolykoptev/go-xgraph"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "xgraph:uid:"
	defaultTTL = 24 * time.Hour
)

// Store is the part of a Redis client the cache needs. *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Lookup wraps another UserLookup with a Redis read-through cache.
// Cache failures are logged and never fail a lookup.
type Lookup struct {
	next  xgraph.UserLookup
	store Store
	ttl   time.Duration
}

var _ xgraph.UserLookup = (*Lookup)(nil)

// New wraps next. A zero ttl means 24h.
func New(next xgraph.UserLookup, store Store, ttl time.Duration) *Lookup {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Lookup{next: next, store: store, ttl: ttl}
}

// NewRedis wraps next with a cache on a new Redis client.
func NewRedis(next xgraph.UserLookup, options *redis.Options, ttl time.Duration) *Lookup {
	return New(next, redis.NewClient(options), ttl)
}

// Key returns the cache key of a handle. Handles are case-insensitive.
func Key(handle string) string {
	return keyPrefix + strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// UserID implements xgraph.UserLookup.
func (l *Lookup) UserID(ctx context.Context, handle string) (string, error) {
	key := Key(handle)

	id, err := l.store.Get(ctx, key).Result()
	switch {
	case err == nil && id != "":
		return id, nil
	case err != nil && !errors.Is(err, redis.Nil):
		slog.Warn("lookup cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	id, err = l.next.UserID(ctx, handle)
	if err != nil {
		return "", err
	}
	if err := l.store.Set(ctx, key, id, l.ttl).Err(); err != nil {
		slog.Warn("lookup cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return id, nil
}
