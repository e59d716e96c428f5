package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diabetes-risk-fusion/internal/domain"
)

const adviceKeyPrefix = "advice:"

// CacheClient wraps a Redis client for caching generated advice across
// service instances.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient connects to the Redis instance in config.RedisURL.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCacheClientFromRedis(client, config.DefaultTTL), nil
}

// NewCacheClientFromRedis uses an existing client.
func NewCacheClientFromRedis(client *redis.Client, defaultTTL time.Duration) *CacheClient {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &CacheClient{redis: client, defaultTTL: defaultTTL}
}

// CachedAdvice represents cached advice with metadata
type CachedAdvice struct {
	Data      *domain.Advice `json:"data"`
	CachedAt  time.Time      `json:"cached_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// GetAdvice retrieves cached advice. Misses, expired entries and corrupt
// entries all report found=false; corrupt and expired entries are removed.
func (c *CacheClient) GetAdvice(ctx context.Context, key string) (*domain.Advice, bool, error) {
	redisKey := adviceKeyPrefix + key

	val, err := c.redis.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get advice cache: %w", err)
	}

	var cached CachedAdvice
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Data == nil {
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, redisKey)
		return nil, false, nil
	}

	return cached.Data, true, nil
}

// SetAdvice caches advice; a zero ttl uses the client default.
func (c *CacheClient) SetAdvice(ctx context.Context, key string, advice *domain.Advice, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	data, err := json.Marshal(CachedAdvice{
		Data:      advice,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal advice cache data: %w", err)
	}

	return c.redis.Set(ctx, adviceKeyPrefix+key, string(data), ttl).Err()
}

// InvalidateAll removes every cached advice entry.
func (c *CacheClient) InvalidateAll(ctx context.Context) (int, error) {
	var removed int
	iter := c.redis.Scan(ctx, 0, adviceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan advice keys: %w", err)
	}
	return removed, nil
}

// Ping checks if Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
