package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snarg/stt-engine/internal/transcribe"
)

// keyPrefix namespaces cache entries so the engine can share a Redis instance
// with other services.
const keyPrefix = "stt:result:"

// Redis is a cache backend on a shared Redis instance. TTL expiry is handled
// server-side.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis cache from a redis:// URL.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (*transcribe.Result, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var res transcribe.Result
	if err := json.Unmarshal(data, &res); err != nil {
		// Corrupt entry: treat as a miss rather than poisoning every lookup.
		r.client.Del(ctx, keyPrefix+key)
		return nil, false, nil
	}
	return &res, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, res *transcribe.Result, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Type() string { return "redis" }

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
