package api

import (
	"context"
	"time"

	"github.com/wonny/taxico2/internal/api/handlers"
	"github.com/wonny/taxico2/internal/contracts"
	"github.com/wonny/taxico2/pkg/redis"
)

// CachedAnalyzer serves analyzer queries through the Redis response cache.
// Entries are flushed by every successful analyze run.
type CachedAnalyzer struct {
	handlers.Analyzer
	cache *redis.Cache
	ttl   time.Duration
}

// NewCachedAnalyzer wraps a with a cache scoped to the analyzer's scope
func NewCachedAnalyzer(a handlers.Analyzer, client *redis.Client, ttl time.Duration) *CachedAnalyzer {
	return &CachedAnalyzer{
		Analyzer: a,
		cache:    redis.NewCache(client, redis.ScopePrefix(a.Scope().Name)),
		ttl:      ttl,
	}
}

func (c *CachedAnalyzer) LargestTrip(ctx context.Context, table string) (*contracts.LargestTrip, error) {
	var out *contracts.LargestTrip
	err := c.cache.GetOrSet(ctx, redis.LargestKey(table), &out, c.ttl, func() (interface{}, error) {
		return c.Analyzer.LargestTrip(ctx, table)
	})
	return out, err
}

func (c *CachedAnalyzer) BucketExtremes(ctx context.Context, table string, dim contracts.Dimension, agg contracts.Aggregate) (*contracts.BucketExtremes, error) {
	var out *contracts.BucketExtremes
	key := redis.BucketsKey(table, string(dim), string(agg))
	err := c.cache.GetOrSet(ctx, key, &out, c.ttl, func() (interface{}, error) {
		return c.Analyzer.BucketExtremes(ctx, table, dim, agg)
	})
	return out, err
}

func (c *CachedAnalyzer) MonthlySeries(ctx context.Context, yellow, green string, scope contracts.Scope) ([]contracts.MonthPoint, error) {
	var out []contracts.MonthPoint
	err := c.cache.GetOrSet(ctx, redis.MonthlyKey(yellow, green), &out, c.ttl, func() (interface{}, error) {
		return c.Analyzer.MonthlySeries(ctx, yellow, green, scope)
	})
	return out, err
}
