package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/taskiranumut/crystal-ball/internal/models"
)

// ListCacheTTL is intentionally short: vote counts move constantly and the
// cache is invalidated on every confirmed write anyway.
const ListCacheTTL = 30 * time.Second

// Cache is a Redis cache-aside layer for list reads. A nil client turns every
// operation into a no-op, so the store works without Redis.
type Cache struct {
	rdb *redis.Client
}

// NewCache creates a list cache. If redisURL is empty or the connection
// fails, caching is disabled rather than fatal.
func NewCache(ctx context.Context, redisURL string) *Cache {
	if redisURL == "" {
		log.Info().Msg("prediction cache: no redis URL configured, caching disabled")
		return &Cache{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Error().Err(err).Msg("prediction cache: invalid redis URL, caching disabled")
		return &Cache{}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("prediction cache: redis connection failed, caching disabled")
		return &Cache{}
	}

	log.Info().Msg("prediction cache: redis connected, caching enabled")
	return &Cache{rdb: rdb}
}

// NewCacheWithClient wraps an existing Redis client (shared with the ledger
// backend). May be nil.
func NewCacheWithClient(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Client returns the underlying Redis client for sharing and health checks.
// May be nil.
func (c *Cache) Client() *redis.Client {
	return c.rdb
}

// GetList returns a cached list, or (nil, false) on miss or disabled cache.
func (c *Cache) GetList(ctx context.Context, key string) ([]models.Prediction, bool) {
	if c.rdb == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("prediction cache: read failed")
		return nil, false
	}

	var preds []models.Prediction
	if err := json.Unmarshal(data, &preds); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("prediction cache: unparseable entry")
		return nil, false
	}
	return preds, true
}

// SetList stores a fetched list under key.
func (c *Cache) SetList(ctx context.Context, key string, preds []models.Prediction) {
	if c.rdb == nil {
		return
	}

	data, err := json.Marshal(preds)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("prediction cache: marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, key, data, ListCacheTTL).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("prediction cache: write failed")
	}
}

// InvalidateLists drops every list key. The tag set is fixed, so the keys are
// enumerable without a scan.
func (c *Cache) InvalidateLists(ctx context.Context) {
	if c.rdb == nil {
		return
	}

	keys := []string{allListKey}
	for tag := range models.ValidTags {
		keys = append(keys, tagListKey(tag))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Msg("prediction cache: invalidation failed")
	}
}

// Close shuts down the Redis connection.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

const allListKey = "predictions:all"

func tagListKey(tag models.Tag) string {
	return fmt.Sprintf("predictions:tag:%s", tag)
}
