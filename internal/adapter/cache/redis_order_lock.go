package cache

import (
	"context"
	"time"

	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only if we still own it, so a lock that
// expired and was taken by another instance is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOrderLocker serializes lifecycle changes for one order across instances.
type RedisOrderLocker struct {
	rdb      *redis.Client
	ttl      time.Duration
	wait     time.Duration
	interval time.Duration
}

func NewRedisOrderLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisOrderLocker {
	return &RedisOrderLocker{rdb: rdb, ttl: ttl, wait: wait, interval: 25 * time.Millisecond}
}

func orderLockKey(orderID string) string { return "order:lock:" + orderID }

func (l *RedisOrderLocker) Lock(ctx context.Context, orderID string) (func(), error) {
	key := orderLockKey(orderID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for attempt := 1; ; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// the request ctx may already be done
				uctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := unlockScript.Run(uctx, l.rdb, []string{key}, token).Err(); err != nil {
					logging.FromCtx(ctx).WarnContext(ctx, "order unlock failed", "order_id", orderID, "error", err)
				}
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, &usecase.ConcurrencyConflictError{OrderID: orderID, Attempts: attempt}
		}

		t := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

var _ usecase.OrderLocker = (*RedisOrderLocker)(nil)
