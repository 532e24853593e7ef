// Package cache provides the Redis-backed JSON cache the Sentiment Source
// (C5) reads through. It is grounded on the teacher's internal/cache
// CacheService: a redis.Client wrapped with graceful degradation, so a
// Redis outage surfaces as a cache miss rather than stalling a cycle.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds the Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
}

// RedisCache is a graceful-degradation JSON cache: when Redis is
// unreachable, GetJSON returns a miss and SetJSON is a no-op rather than
// propagating the error up into a trading cycle.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
}

const maxConsecutiveFailures = 3

// NewRedisCache connects to Redis and verifies connectivity.
func NewRedisCache(cfg Config, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB,
		DialTimeout: 5 * time.Second, ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCache{client: client, logger: logger.With().Str("component", "RedisCache").Logger(), healthy: true}, nil
}

// GetJSON satisfies sentiment.Cache. A Redis error or an unhealthy cache
// returns an error, which the caller treats as a miss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !c.isHealthy() {
		return fmt.Errorf("cache degraded")
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return fmt.Errorf("cache miss %s: %w", key, err)
	}
	if err != nil {
		c.recordFailure(err)
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	c.recordSuccess()
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshalling cached value for %s: %w", key, err)
	}
	return nil
}

// SetJSON satisfies sentiment.Cache, logging but not erroring on a write
// failure: a caching problem never blocks the cycle that computed the
// value being cached.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.isHealthy() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.recordFailure(err)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return nil
	}
	c.recordSuccess()
	return nil
}

func (c *RedisCache) isHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *RedisCache) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= maxConsecutiveFailures && c.healthy {
		c.healthy = false
		c.logger.Warn().Err(err).Msg("cache marked degraded after consecutive failures")
	}
}

func (c *RedisCache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount = 0
	c.healthy = true
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
