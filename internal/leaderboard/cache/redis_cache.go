package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/bet-ledger/internal/leaderboard"
)

// RedisCache guarda o top N de cada período como JSON.
// Invalidate apaga todas as variações de limite do período via SET auxiliar.
type RedisCache struct {
	Client redis.Cmdable
	TTL    time.Duration
}

// NewRedisCache cria uma instância de cache Redis com TTL configurável
func NewRedisCache(c redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: c, TTL: ttl}
}

func topKey(period string, limit int) string {
	return fmt.Sprintf("leaderboard:%s:top:%d", period, limit)
}

func indexKey(period string) string { return "leaderboard:" + period + ":keys" }

func (r *RedisCache) GetTop(ctx context.Context, period string, limit int) ([]leaderboard.Score, bool, error) {
	b, err := r.Client.Get(ctx, topKey(period, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var scores []leaderboard.Score
	if err := json.Unmarshal(b, &scores); err != nil {
		return nil, false, err
	}
	return scores, true, nil
}

func (r *RedisCache) SetTop(ctx context.Context, period string, limit int, scores []leaderboard.Score) error {
	b, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	key := topKey(period, limit)
	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, key, b, r.TTL)
	pipe.SAdd(ctx, indexKey(period), key)
	pipe.Expire(ctx, indexKey(period), r.TTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisCache) Invalidate(ctx context.Context, period string) error {
	keys, err := r.Client.SMembers(ctx, indexKey(period)).Result()
	if err != nil {
		return err
	}
	return r.Client.Del(ctx, append(keys, indexKey(period))...).Err()
}
