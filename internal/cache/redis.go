package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

const scanBatch = 200

type RedisCache struct {
	client  redis.UniversalClient
	breaker *CircuitBreaker
	ctx     context.Context
	owned   bool
}

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Breaker      *CircuitBreakerConfig
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisClient builds the client shared by the cache, the session store and
// the job queue.
func NewRedisClient(config *CacheConfig) *redis.Client {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// NewRedisCache dials its own client, which Close releases.
func NewRedisCache(config *CacheConfig) *RedisCache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	rc := NewRedisCacheWithClient(NewRedisClient(config), config.Breaker)
	rc.owned = true
	return rc
}

// NewRedisCacheWithClient wraps a client owned by the caller.
func NewRedisCacheWithClient(client redis.UniversalClient, breaker *CircuitBreakerConfig) *RedisCache {
	return &RedisCache{
		client:  client,
		breaker: NewCircuitBreaker(breaker),
		ctx:     context.Background(),
	}
}

func (r *RedisCache) Set(key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
			return fmt.Errorf("failed to set cache: %w", err)
		}
		return nil
	})
}

func (r *RedisCache) Get(key string, dest interface{}) error {
	var data []byte
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		raw, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get from cache: %w", err)
		}
		data = raw
		return nil
	})
	if err != nil {
		return err
	}
	if data == nil {
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(key string) error {
	return r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		return r.client.Del(ctx, key).Err()
	})
}

// DeletePattern walks the keyspace with SCAN so large databases are never
// blocked the way KEYS would block them.
func (r *RedisCache) DeletePattern(pattern string) error {
	return r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
		defer cancel()

		var cursor uint64
		for {
			keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
			if err != nil {
				return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
			}
			if len(keys) > 0 {
				if err := r.client.Del(ctx, keys...).Err(); err != nil {
					return fmt.Errorf("failed to delete keys for pattern %s: %w", pattern, err)
				}
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	})
}

// Generation reads a counter written by BumpGeneration. A missing key is
// generation zero.
func (r *RedisCache) Generation(key string) (int64, error) {
	var gen int64
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, time.Second)
		defer cancel()

		raw, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read generation %s: %w", key, err)
		}
		gen, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt generation %s: %w", key, err)
		}
		return nil
	})
	return gen, err
}

// BumpGeneration increments the counter with INCR. The key never expires;
// losing it would bring entries of generation zero back to life.
func (r *RedisCache) BumpGeneration(key string) (int64, error) {
	var gen int64
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, time.Second)
		defer cancel()

		n, err := r.client.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to bump generation %s: %w", key, err)
		}
		gen = n
		return nil
	})
	return gen, err
}

func (r *RedisCache) Exists(key string) (bool, error) {
	var exists bool
	err := r.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(r.ctx, 3*time.Second)
		defer cancel()

		n, err := r.client.Exists(ctx, key).Result()
		exists = n > 0
		return err
	})
	return exists, err
}

func (r *RedisCache) Health() error {
	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheDown, err)
	}
	return nil
}

func (r *RedisCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"breaker": r.breaker.GetStats(),
	}

	if client, ok := r.client.(*redis.Client); ok {
		poolStats := client.PoolStats()
		stats["pool_hits"] = poolStats.Hits
		stats["pool_misses"] = poolStats.Misses
		stats["pool_timeouts"] = poolStats.Timeouts
		stats["pool_total"] = poolStats.TotalConns
		stats["pool_idle"] = poolStats.IdleConns
		stats["pool_stale"] = poolStats.StaleConns
	}
	return stats
}

func (r *RedisCache) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
