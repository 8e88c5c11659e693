package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"tripdeal/config"
	"tripdeal/models"

	"github.com/hibiken/asynq"
)

// TypeSessionArchive is the task type for archiving terminal sessions.
const TypeSessionArchive = "negotiation:archive"

// ArchivePayload is the queued snapshot of a terminal session.
type ArchivePayload struct {
	Session models.NegotiationSession `json:"session"`
}

// AsynqArchiver enqueues terminal sessions onto the archive queue.
type AsynqArchiver struct {
	client *asynq.Client
}

// NewAsynqArchiver builds an archiver over the configured Redis queue.
func NewAsynqArchiver() *AsynqArchiver {
	return &AsynqArchiver{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     config.AppConfig.RedisAddr,
			Password: config.AppConfig.RedisPassword,
			DB:       config.AppConfig.RedisArchiveDB,
		}),
	}
}

// EnqueueArchive queues one terminal session for background archival.
func (a *AsynqArchiver) EnqueueArchive(ctx context.Context, snap models.NegotiationSession) error {
	payload, err := json.Marshal(ArchivePayload{Session: snap})
	if err != nil {
		return fmt.Errorf("failed to marshal archive payload: %w", err)
	}
	task := asynq.NewTask(TypeSessionArchive, payload)
	if _, err := a.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue archive task: %w", err)
	}
	return nil
}

// Close releases the underlying queue client.
func (a *AsynqArchiver) Close() error {
	return a.client.Close()
}
