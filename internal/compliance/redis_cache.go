package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "zone_thresholds:"

// RedisCache shares threshold tables between API and worker processes
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. A non-positive ttl uses DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Ensure RedisCache implements Cache
var _ Cache = (*RedisCache)(nil)

func redisKey(parishID int64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, parishID)
}

func (c *RedisCache) Get(ctx context.Context, parishID int64) (*ParishThresholds, bool) {
	raw, err := c.client.Get(ctx, redisKey(parishID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("threshold cache: failed to read parish %d: %v", parishID, err)
		}
		return nil, false
	}

	var thresholds ParishThresholds
	if err := json.Unmarshal(raw, &thresholds); err != nil {
		log.Printf("threshold cache: dropping corrupt entry for parish %d: %v", parishID, err)
		c.Invalidate(ctx, parishID)
		return nil, false
	}
	return &thresholds, true
}

func (c *RedisCache) Set(ctx context.Context, parishID int64, thresholds *ParishThresholds) {
	raw, err := json.Marshal(thresholds)
	if err != nil {
		log.Printf("threshold cache: failed to encode parish %d: %v", parishID, err)
		return
	}
	if err := c.client.Set(ctx, redisKey(parishID), raw, c.ttl).Err(); err != nil {
		log.Printf("threshold cache: failed to store parish %d: %v", parishID, err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, parishID int64) {
	if err := c.client.Del(ctx, redisKey(parishID)).Err(); err != nil {
		log.Printf("threshold cache: failed to invalidate parish %d: %v", parishID, err)
	}
}

func (c *RedisCache) InvalidateAll(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("threshold cache: failed to delete %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("threshold cache: scan failed: %v", err)
	}
}
