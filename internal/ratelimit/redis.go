package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend shares a sliding-window count across server replicas
// using one sorted set per identity, scored by call timestamp — the
// usual ZADD/ZREMRANGEBYSCORE sliding-window idiom, since go-redis has
// no built-in rate limiter primitive.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to the given Redis URL (redis://host:port/db).
func NewRedisBackend(ctx context.Context, url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: connect to redis: %w", err)
	}
	return &RedisBackend{client: client, prefix: "gofr-dig:ratelimit:"}, nil
}

// Close releases the underlying connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// Record implements Backend.
func (r *RedisBackend) Record(ctx context.Context, key string, now, cutoff time.Time, maxCalls int) (int, time.Time, bool, error) {
	setKey := r.prefix + key

	if err := r.client.ZRemRangeByScore(ctx, setKey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano())).Err(); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("ratelimit: prune window: %w", err)
	}

	count, err := r.client.ZCard(ctx, setKey).Result()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("ratelimit: count window: %w", err)
	}

	oldest, hasOldest, err := r.oldestTimestamp(ctx, setKey)
	if err != nil {
		return 0, time.Time{}, false, err
	}

	if int(count) >= maxCalls {
		return int(count) + 1, oldest, hasOldest, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond())
	if err := r.client.ZAdd(ctx, setKey, redis.Z{Score: float64(now.UnixNano()), Member: member}).Err(); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("ratelimit: record call: %w", err)
	}
	if err := r.client.Expire(ctx, setKey, time.Hour).Err(); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("ratelimit: set expiry: %w", err)
	}

	if !hasOldest {
		oldest, hasOldest = now, true
	}
	return int(count) + 1, oldest, hasOldest, nil
}

func (r *RedisBackend) oldestTimestamp(ctx context.Context, setKey string) (time.Time, bool, error) {
	results, err := r.client.ZRangeWithScores(ctx, setKey, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("ratelimit: read oldest entry: %w", err)
	}
	if len(results) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(0, int64(results[0].Score)), true, nil
}
