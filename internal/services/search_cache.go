package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const searchCachePrefix = "providers:search:"

// SearchCache remembers which place ids a search returned so repeat
// searches inside the freshness window read the store instead of the
// places backend. A nil *SearchCache is a cache that always misses.
type SearchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSearchCache(rdb *redis.Client, ttl time.Duration) *SearchCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &SearchCache{rdb: rdb, ttl: ttl}
}

func (c *SearchCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	raw, err := c.rdb.Get(ctx, searchCachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

func (c *SearchCache) Put(ctx context.Context, key string, placeIDs []string) error {
	if c == nil {
		return nil
	}

	raw, err := json.Marshal(placeIDs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, searchCachePrefix+key, raw, c.ttl).Err()
}
