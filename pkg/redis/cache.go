package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values under "<prefix>:cache:<key>"
// ⭐ SSOT: cache helpers live only here
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value. A missing key reports found=false.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// GetOrSet fills dest from cache, or from fn on a miss. A failed cache
// read or write falls through to fn's value.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	if found, err := c.Get(ctx, key, dest); err == nil && found {
		return nil
	}

	value, err := fn()
	if err != nil {
		return err
	}

	_ = c.Set(ctx, key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// Flush deletes every key under the cache prefix and returns the count
func (c *Cache) Flush(ctx context.Context) (int, error) {
	if !c.client.Enabled() {
		return 0, nil
	}

	var deleted int
	iter := c.client.Redis().Scan(ctx, 0, c.fullKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Redis().Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("cache delete %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache scan: %w", err)
	}
	return deleted, nil
}

// Cache key generators
func LargestKey(table string) string {
	return fmt.Sprintf("largest:%s", table)
}

func BucketsKey(table, dimension, agg string) string {
	return fmt.Sprintf("buckets:%s:%s:%s", table, dimension, agg)
}

func MonthlyKey(yellow, green string) string {
	return fmt.Sprintf("monthly:%s:%s", yellow, green)
}

// ScopePrefix is the cache prefix of one scope's results
func ScopePrefix(scope string) string {
	return "taxico2:" + scope
}
