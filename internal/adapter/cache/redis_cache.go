package cache

import (
	"context"
	"errors"
	"time"

	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/redis/go-redis/v9"
)

// RedisCache keeps the last known status per order. It is a read shortcut;
// the database stays authoritative.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func statusKey(orderID string) string { return "order:status:" + orderID }

func (r *RedisCache) SetStatus(ctx context.Context, orderID string, status string) error {
	return r.rdb.Set(ctx, statusKey(orderID), status, r.ttl).Err()
}

// SetStatusIfAbsent is the read-path fill. A status written by a transition
// in the meantime is newer than what the reader loaded, so it is kept.
func (r *RedisCache) SetStatusIfAbsent(ctx context.Context, orderID string, status string) error {
	return r.rdb.SetNX(ctx, statusKey(orderID), status, r.ttl).Err()
}

// GetStatus returns "" without error on a miss.
func (r *RedisCache) GetStatus(ctx context.Context, orderID string) (string, error) {
	val, err := r.rdb.Get(ctx, statusKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (r *RedisCache) DeleteStatus(ctx context.Context, orderID string) error {
	return r.rdb.Del(ctx, statusKey(orderID)).Err()
}

var _ usecase.OrderCache = (*RedisCache)(nil)
