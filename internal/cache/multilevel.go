package cache

import (
	"errors"
	"sync"
	"time"
)

type Cache interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string, dest interface{}) error
	Delete(key string) error
	DeletePattern(pattern string) error
	Exists(key string) (bool, error)
	// Generation and BumpGeneration manage counters that callers fold into
	// their keys. Bumping makes every key built from the old value
	// unreachable, whatever happened to the entries themselves.
	Generation(key string) (int64, error)
	BumpGeneration(key string) (int64, error)
	Stats() map[string]interface{}
	Health() error
	Close() error
}

// DefaultL1TTL caps how long a value lives in process memory. Pattern
// deletes reach only this instance's L1, so entries not keyed by a generation
// must expire quickly.
const DefaultL1TTL = 30 * time.Second

type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	l1TTL   time.Duration
	metrics *CacheMetrics

	mu sync.Mutex
	// pending holds bumps that redis refused. Until they land, Generation
	// fails so callers bypass the cache instead of reading old entries.
	pending map[string]struct{}
}

// NewMultiLevelCache builds a memory-only cache when redisCache is nil.
func NewMultiLevelCache(redisCache *RedisCache) *MultiLevelCache {
	return &MultiLevelCache{
		l1:      NewMemoryCache(0),
		l2:      redisCache,
		l1TTL:   DefaultL1TTL,
		metrics: NewCacheMetrics(),
		pending: make(map[string]struct{}),
	}
}

func (c *MultiLevelCache) l1Expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.l1TTL {
		return c.l1TTL
	}
	return ttl
}

func (c *MultiLevelCache) Set(key string, value interface{}, ttl time.Duration) error {
	if err := c.l1.Set(key, value, c.l1Expiry(ttl)); err != nil {
		c.metrics.RecordError()
		return err
	}
	c.metrics.RecordSet()

	if c.l2 != nil {
		if err := c.l2.Set(key, value, ttl); err != nil {
			c.metrics.RecordError()
			return err
		}
	}
	return nil
}

func (c *MultiLevelCache) Get(key string, dest interface{}) error {
	if err := c.l1.Get(key, dest); err == nil {
		c.metrics.RecordHit()
		return nil
	}

	if c.l2 == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	err := c.l2.Get(key, dest)
	switch {
	case err == nil:
		c.metrics.RecordHit()
		c.l1.Set(key, dest, c.l1TTL)
		return nil
	case errors.Is(err, ErrCacheMiss):
		c.metrics.RecordMiss()
		return ErrCacheMiss
	default:
		c.metrics.RecordError()
		return err
	}
}

func (c *MultiLevelCache) Delete(key string) error {
	c.l1.Delete(key)
	c.metrics.RecordDelete()

	if c.l2 != nil {
		return c.l2.Delete(key)
	}
	return nil
}

func (c *MultiLevelCache) DeletePattern(pattern string) error {
	if err := c.l1.DeletePattern(pattern); err != nil {
		return err
	}
	c.metrics.RecordDelete()

	if c.l2 != nil {
		return c.l2.DeletePattern(pattern)
	}
	return nil
}

// Generation is read from redis when there is one so that every instance
// agrees on it, which also retires stale L1 copies on other instances.
func (c *MultiLevelCache) Generation(key string) (int64, error) {
	if c.l2 == nil {
		return c.l1.Generation(key)
	}
	if err := c.flushPending(); err != nil {
		c.metrics.RecordError()
		return 0, err
	}
	gen, err := c.l2.Generation(key)
	if err != nil {
		c.metrics.RecordError()
	}
	return gen, err
}

func (c *MultiLevelCache) BumpGeneration(key string) (int64, error) {
	if c.l2 == nil {
		return c.l1.BumpGeneration(key)
	}
	gen, err := c.l2.BumpGeneration(key)
	if err != nil {
		c.metrics.RecordError()
		c.mu.Lock()
		c.pending[key] = struct{}{}
		c.mu.Unlock()
		return 0, err
	}
	return gen, nil
}

func (c *MultiLevelCache) flushPending() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.pending {
		if _, err := c.l2.BumpGeneration(key); err != nil {
			return err
		}
		delete(c.pending, key)
	}
	return nil
}

func (c *MultiLevelCache) Exists(key string) (bool, error) {
	if found, _ := c.l1.Exists(key); found {
		return true, nil
	}
	if c.l2 != nil {
		return c.l2.Exists(key)
	}
	return false, nil
}

func (c *MultiLevelCache) Metrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":       c.l1.Stats(),
		"metrics":  c.metrics.GetStats(),
		"hit_rate": c.metrics.HitRate(),
	}
	c.mu.Lock()
	stats["pending_bumps"] = len(c.pending)
	c.mu.Unlock()
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

func (c *MultiLevelCache) Health() error {
	if c.l2 != nil {
		return c.l2.Health()
	}
	return nil
}

func (c *MultiLevelCache) Close() error {
	c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
