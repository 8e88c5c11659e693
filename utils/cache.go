// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"tripdeal/config"

	"github.com/go-redis/redis/v8"
)

var (
	// SessionCacheClient holds negotiation session snapshots.
	SessionCacheClient *redis.Client
	// DialogCacheClient holds per-user recent dialogue keys.
	DialogCacheClient *redis.Client
)

func newRedisClient(db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis (DB %d): %v", db, err)
	}
	return client
}

// InitSessionCache initializes the Redis client for session snapshots.
func InitSessionCache() {
	SessionCacheClient = newRedisClient(config.AppConfig.RedisSessionDB)
}

// GetSessionCacheClient returns the session snapshot cache client.
func GetSessionCacheClient() *redis.Client {
	if SessionCacheClient == nil {
		InitSessionCache()
	}
	return SessionCacheClient
}

// InitDialogCache initializes the Redis client for dialogue memory.
func InitDialogCache() {
	DialogCacheClient = newRedisClient(config.AppConfig.RedisDialogDB)
}

// GetDialogCacheClient returns the dialogue memory cache client.
func GetDialogCacheClient() *redis.Client {
	if DialogCacheClient == nil {
		InitDialogCache()
	}
	return DialogCacheClient
}
