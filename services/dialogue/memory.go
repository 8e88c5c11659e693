package dialogue

import (
	"context"
	"time"

	"tripdeal/utils"

	"github.com/go-redis/redis/v8"
)

// MemoryStore tracks which dialogue keys a user has heard recently, across
// sessions. The engine reads it at session start and writes back only after
// a session ends; it is best effort and never blocks a negotiation.
type MemoryStore interface {
	RecentKeys(ctx context.Context, userID string) (map[string]struct{}, error)
	Remember(ctx context.Context, userID string, keys []string) error
}

// RedisMemoryStore keeps a capped rolling list of recent keys per user.
type RedisMemoryStore struct {
	client *redis.Client
	ttl    time.Duration
	size   int64
}

func NewRedisMemoryStore(client *redis.Client, ttl time.Duration, size int64) *RedisMemoryStore {
	return &RedisMemoryStore{client: client, ttl: ttl, size: size}
}

func (s *RedisMemoryStore) RecentKeys(ctx context.Context, userID string) (map[string]struct{}, error) {
	key := utils.DialogMemoryPrefix + userID
	values, err := s.client.LRange(ctx, key, 0, s.size-1).Result()
	if err == redis.Nil {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	recent := make(map[string]struct{}, len(values))
	for _, v := range values {
		recent[v] = struct{}{}
	}
	return recent, nil
}

func (s *RedisMemoryStore) Remember(ctx context.Context, userID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	key := utils.DialogMemoryPrefix + userID
	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.LPush(ctx, key, k)
	}
	pipe.LTrim(ctx, key, 0, s.size-1)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}
