// Package redis caches compute responses in Redis, keyed by configuration
// signature hash.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/internal/errors"
)

const defaultTTL = 15 * time.Minute

// ResultCache implements ports.ResultCache using Redis
type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResultCache connects to redisURL and verifies the connection
func NewResultCache(redisURL string, ttl time.Duration) (*ResultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewResultCacheWithClient(client, ttl), nil
}

// NewResultCacheWithClient creates a cache from an existing Redis client
func NewResultCacheWithClient(client *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ResultCache{
		client: client,
		prefix: "pivot:result:",
		ttl:    ttl,
	}
}

func (c *ResultCache) key(hash core.SignatureHash) string {
	return c.prefix + string(hash)
}

// Get returns the cached response, or (nil, false, nil) on a miss
func (c *ResultCache) Get(ctx context.Context, hash core.SignatureHash) (*pivot.ComputeResponse, bool, error) {
	raw, err := c.client.Get(ctx, c.key(hash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.CacheError("lookup pivot result", err)
	}

	var resp pivot.ComputeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		// Corrupt entry; drop it and report a miss
		_ = c.client.Del(ctx, c.key(hash)).Err()
		return nil, false, nil
	}
	return &resp, true, nil
}

// Put stores resp under hash with the configured TTL
func (c *ResultCache) Put(ctx context.Context, hash core.SignatureHash, resp *pivot.ComputeResponse) error {
	if resp == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return errors.CacheError("marshal pivot result", err)
	}
	if err := c.client.Set(ctx, c.key(hash), raw, c.ttl).Err(); err != nil {
		return errors.CacheError("save pivot result", err)
	}
	return nil
}

// Invalidate deletes the entry for hash
func (c *ResultCache) Invalidate(ctx context.Context, hash core.SignatureHash) error {
	if err := c.client.Del(ctx, c.key(hash)).Err(); err != nil {
		return errors.CacheError("invalidate pivot result", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (c *ResultCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.CacheError("ping redis", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *ResultCache) Close() error {
	return c.client.Close()
}
