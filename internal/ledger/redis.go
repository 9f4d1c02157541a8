package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBackend persists voted-ID lists in Redis keyed by client ID. It is the
// durable fallback behind the cookie: same JSON shape, same ~100-day expiry.
// A nil client degrades every operation to "no data" so the ledger still
// works cookie-only when Redis is unavailable.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend creates a Redis ledger backend. If redisURL is empty or the
// connection cannot be established the backend is disabled rather than fatal.
func NewRedisBackend(ctx context.Context, redisURL string) *RedisBackend {
	if redisURL == "" {
		log.Info().Msg("ledger: no redis URL configured, redis backend disabled")
		return &RedisBackend{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Error().Err(err).Msg("ledger: invalid redis URL, redis backend disabled")
		return &RedisBackend{}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("ledger: redis connection failed, redis backend disabled")
		return &RedisBackend{}
	}

	log.Info().Msg("ledger: redis backend enabled")
	return &RedisBackend{rdb: rdb}
}

// NewRedisBackendWithClient wraps an existing client (shared with the
// prediction cache).
func NewRedisBackendWithClient(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Load(ctx context.Context, c *Client) ([]string, bool) {
	if b.rdb == nil || c.ID == "" {
		return nil, false
	}

	data, err := b.rdb.Get(ctx, b.key(c.ID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("ledger: redis read failed")
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		log.Warn().Err(err).Msg("ledger: unparseable redis ledger entry, treating as empty")
		return nil, false
	}
	return ids, true
}

func (b *RedisBackend) Save(ctx context.Context, c *Client, ids []string) error {
	if b.rdb == nil {
		return nil
	}
	if c.ID == "" {
		return fmt.Errorf("ledger: client has no id")
	}

	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return b.rdb.Set(ctx, b.key(c.ID), data, CookieMaxAge).Err()
}

// Close shuts down the backend's Redis connection.
func (b *RedisBackend) Close() error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func (b *RedisBackend) key(clientID string) string {
	return fmt.Sprintf("ledger:pids:%s", clientID)
}
