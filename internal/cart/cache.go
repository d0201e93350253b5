package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores listings under a per-user version. Invalidate bumps the
// version, so a listing computed before a mutation can never be served after it.
type Cache interface {
	Version(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string, version int64) ([]Item, error)
	Set(ctx context.Context, userID string, version int64, items []Item) error
	Invalidate(ctx context.Context, userID string) error
}

type RedisCache struct {
	client  redis.Cmdable
	baseTTL time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: redisx.TTLCartItems,
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "cart-cache",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, redis.Nil)
			},
		}),
	}
}

func (r *RedisCache) Version(ctx context.Context, userID string) (int64, error) {
	b, err := r.breaker.Execute(func() ([]byte, error) {
		return r.client.Get(ctx, fmt.Sprintf(redisx.KeyCartVersion, userID)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	var v int64
	if _, err := fmt.Sscan(string(b), &v); err != nil {
		return 0, fmt.Errorf("parse cart version: %w", err)
	}
	return v, nil
}

func (r *RedisCache) Get(ctx context.Context, userID string, version int64) ([]Item, error) {
	data, err := r.breaker.Execute(func() ([]byte, error) {
		return r.client.Get(ctx, itemsKey(userID, version)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return items, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, version int64, items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	_, err = r.breaker.Execute(func() ([]byte, error) {
		return nil, r.client.Set(ctx, itemsKey(userID, version), data, r.baseTTL+jitter).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, userID string) error {
	key := fmt.Sprintf(redisx.KeyCartVersion, userID)
	_, err := r.breaker.Execute(func() ([]byte, error) {
		pipe := r.client.TxPipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, redisx.TTLCartVersion)
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func itemsKey(userID string, version int64) string {
	return fmt.Sprintf(redisx.KeyCartItems, userID, version)
}
