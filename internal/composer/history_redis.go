package composer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisHistoryTTL is how long an idle client's history is kept.
const DefaultRedisHistoryTTL = 30 * 24 * time.Hour

// RedisHistory stores one client's history in a Redis set and hash so server-side
// composition can remix across requests and server instances.
type RedisHistory struct {
	rdb      redis.Cmdable
	seenKey  string
	remixKey string
	ttl      time.Duration
}

// NewRedisHistory scopes history to clientID. A non-positive ttl uses DefaultRedisHistoryTTL.
func NewRedisHistory(rdb redis.Cmdable, clientID string, ttl time.Duration) *RedisHistory {
	if ttl <= 0 {
		ttl = DefaultRedisHistoryTTL
	}
	prefix := "sitmon:history:" + clientID
	return &RedisHistory{
		rdb:      rdb,
		seenKey:  prefix + ":searched",
		remixKey: prefix + ":remix",
		ttl:      ttl,
	}
}

func (r *RedisHistory) HasSeen(ctx context.Context, key string) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, r.seenKey, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read history: %w", err)
	}
	return ok, nil
}

func (r *RedisHistory) MarkSeen(ctx context.Context, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, r.seenKey, key)
		p.Expire(ctx, r.seenKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

func (r *RedisHistory) LastIndex(ctx context.Context, key string) (int, bool, error) {
	idx, err := r.rdb.HGet(ctx, r.remixKey, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read remix index: %w", err)
	}
	return idx, true, nil
}

func (r *RedisHistory) SetLastIndex(ctx context.Context, key string, index int) error {
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.remixKey, key, index)
		p.Expire(ctx, r.remixKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record remix index: %w", err)
	}
	return nil
}

var _ HistoryStore = (*RedisHistory)(nil)
