package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/config"
)

// RedisKV is the Redis-backed persistent tier. Entries carry their own
// freshness envelope; the Redis expiry is set as well so abandoned keys
// do not pile up.
type RedisKV struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisKV connects to the Redis URL (redis://host:port/db).
func NewRedisKV(url string) (*RedisKV, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisKV{
		client: redis.NewClient(opts),
		logger: config.NewLogger("cache_redis"),
	}, nil
}

// NewRedisKVFromClient wraps an existing client, used in tests.
func NewRedisKVFromClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client, logger: config.NewLogger("cache_redis")}
}

func (r *RedisKV) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return Entry{}, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return e, true, nil
}

func (r *RedisKV) Set(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", e.Key, err)
	}
	return r.client.Set(ctx, e.Key, data, e.TTL).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisKV) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
