package utils

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthStatus reports reachability of the engine's backing stores: the
// guardrail profile store (mongo), the session snapshot cache, and the
// per-user dialogue memory (redis).
type HealthStatus struct {
	GuardrailStore bool      `json:"guardrailStore"`
	SessionCache   bool      `json:"sessionCache"`
	DialogueMemory bool      `json:"dialogueMemory"`
	CheckedAt      time.Time `json:"checkedAt"`
}

type redisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type mongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

var (
	currentHealth HealthStatus
	healthMu      sync.RWMutex
)

// GetHealthStatus returns the latest stored health snapshot.
func GetHealthStatus() HealthStatus {
	healthMu.RLock()
	defer healthMu.RUnlock()
	return currentHealth
}

// probeHealth pings each backing store once.
func probeHealth(ctx context.Context, sessionCache, dialogueMemory redisPinger, guardrailStore mongoPinger) HealthStatus {
	return HealthStatus{
		GuardrailStore: guardrailStore.Ping(ctx, nil) == nil,
		SessionCache:   sessionCache.Ping(ctx).Err() == nil,
		DialogueMemory: dialogueMemory.Ping(ctx).Err() == nil,
		CheckedAt:      time.Now(),
	}
}

// StartHealthMonitor probes the backing stores every minute and stores the
// snapshot for the health endpoint.
func StartHealthMonitor(sessionCache, dialogueMemory *redis.Client, guardrailStore mongoPinger) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		ctx := context.Background()
		for range ticker.C {
			status := probeHealth(ctx, sessionCache, dialogueMemory, guardrailStore)
			healthMu.Lock()
			currentHealth = status
			healthMu.Unlock()
		}
	}()
}
