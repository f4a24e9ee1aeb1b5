package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Health(ctx context.Context) error
	Stats() map[string]interface{}
	Close() error
}

const defaultL1MaxTTL = time.Minute

// MultiLevelCache keeps a short-lived in-process copy (L1) in front of Redis
// (L2). Without Redis it runs on L1 alone. L2 calls pass through a circuit
// breaker and L2 failures are reported as misses.
type MultiLevelCache struct {
	l1       *MemoryCache
	l2       *RedisCache
	breaker  *Breaker
	metrics  *CacheMetrics
	l1MaxTTL time.Duration
	log      *slog.Logger
}

type MultiLevelOption func(*MultiLevelCache)

func WithBreaker(b *Breaker) MultiLevelOption {
	return func(c *MultiLevelCache) { c.breaker = b }
}

func WithMetrics(m *CacheMetrics) MultiLevelOption {
	return func(c *MultiLevelCache) { c.metrics = m }
}

func WithL1MaxTTL(ttl time.Duration) MultiLevelOption {
	return func(c *MultiLevelCache) { c.l1MaxTTL = ttl }
}

func WithLogger(log *slog.Logger) MultiLevelOption {
	return func(c *MultiLevelCache) { c.log = log }
}

func NewMultiLevelCache(redisCache *RedisCache, opts ...MultiLevelOption) *MultiLevelCache {
	c := &MultiLevelCache{
		l1:       NewMemoryCache(),
		l2:       redisCache,
		breaker:  NewBreaker(BreakerSettings{}),
		metrics:  NewCacheMetrics(),
		l1MaxTTL: defaultL1MaxTTL,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MultiLevelCache) Metrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) l1TTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1MaxTTL {
		return c.l1MaxTTL
	}
	return ttl
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	c.l1.Set(key, data, c.l1TTL(ttl))
	c.metrics.RecordSet()

	if c.l2 == nil {
		return nil
	}

	return c.remote(func() error {
		return c.l2.SetRaw(ctx, key, data, ttl)
	})
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, found := c.l1.Get(key); found {
		c.metrics.RecordHit()
		return json.Unmarshal(data, dest)
	}

	if c.l2 == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	var data []byte
	err := c.remote(func() error {
		var err error
		data, err = c.l2.GetRaw(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		c.metrics.RecordMiss()
		return fmt.Errorf("%w: %w", ErrCacheMiss, err)
	}
	if data == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.metrics.RecordError()
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	c.l1.Set(key, data, c.l1MaxTTL)
	c.metrics.RecordHit()
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	c.l1.Delete(keys...)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}

	return c.remote(func() error {
		return c.l2.Delete(ctx, keys...)
	})
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	c.l1.DeletePattern(pattern)
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}

	return c.remote(func() error {
		return c.l2.DeletePattern(ctx, pattern)
	})
}

// remote runs fn against L2 through the circuit breaker.
func (c *MultiLevelCache) remote(fn func() error) error {
	err := c.breaker.Do(fn)
	if err != nil {
		c.metrics.RecordError()
		if !errors.Is(err, ErrBreakerOpen) {
			c.log.Warn("remote cache call failed", slog.String("error", err.Error()))
		}
		return fmt.Errorf("%w: %w", ErrCacheDown, err)
	}
	return nil
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":      c.l1.Stats(),
		"metrics": c.metrics.Snapshot(),
		"breaker": c.breaker.Stats(),
	}

	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}

	return stats
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 != nil {
		return c.l2.Health(ctx)
	}

	return nil
}

func (c *MultiLevelCache) Close() error {
	if c.l2 != nil {
		return c.l2.Close()
	}

	return nil
}
