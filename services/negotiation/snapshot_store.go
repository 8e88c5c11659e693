package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tripdeal/models"
	"tripdeal/utils"

	"github.com/go-redis/redis/v8"
)

// RedisSnapshotStore keeps session snapshots in Redis with a TTL, so the
// status endpoint can serve sessions shortly after they go terminal.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, snap models.NegotiationSession) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	key := utils.SessionCachePrefix + snap.SessionID
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *RedisSnapshotStore) Get(ctx context.Context, sessionID string) (*models.NegotiationSession, error) {
	key := utils.SessionCachePrefix + sessionID
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap models.NegotiationSession
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse session snapshot: %w", err)
	}
	return &snap, nil
}
