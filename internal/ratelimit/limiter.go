// Package ratelimit throttles login and refresh attempts with fixed-window
// counters, either in Redis or in process memory.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Limiter counts hits per key within a fixed window.
type Limiter interface {
	// Allow records one hit for key and returns ErrRateLimited once the
	// window's budget is spent.
	Allow(ctx context.Context, key string) error
}

// RedisLimiter shares its counters between all server instances.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	k := l.prefix + key

	// INCR and EXPIRE NX share one MULTI so a counter never outlives its
	// window. NX leaves an existing TTL alone: the window starts with the
	// first hit.
	var count *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if count.Val() > int64(l.limit) {
		return ErrRateLimited
	}
	return nil
}

// MemoryLimiter keeps counters in a ttlcache. Used when no Redis address is
// configured; counters are per process.
type MemoryLimiter struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, int]
	limit int
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, int](window),
		ttlcache.WithDisableTouchOnHit[string, int](),
	)
	go cache.Start()

	return &MemoryLimiter{cache: cache, limit: limit}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 1
	if item := l.cache.Get(key); item != nil {
		if remaining := time.Until(item.ExpiresAt()); remaining > 0 {
			count = item.Value() + 1
			l.cache.Set(key, count, remaining)
		} else {
			l.cache.Set(key, count, ttlcache.DefaultTTL)
		}
	} else {
		l.cache.Set(key, count, ttlcache.DefaultTTL)
	}

	if count > l.limit {
		return ErrRateLimited
	}
	return nil
}

// Stop ends the cache's expiry loop.
func (l *MemoryLimiter) Stop() {
	l.cache.Stop()
}
