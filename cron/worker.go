package cron

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tripdeal/config"
	"tripdeal/database"
	"tripdeal/services/tasks"

	"github.com/hibiken/asynq"
)

// InitArchiveWorker runs the async archive worker in background.
func InitArchiveWorker() {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisArchiveDB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSessionArchive, handleArchiveTask)

	// Start async worker with retry logic
	go func() {
		log.Println("[ArchiveWorker] starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[ArchiveWorker] attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[ArchiveWorker] max retry attempts reached. Exiting.")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second) // Exponential backoff
			} else {
				break
			}
		}
	}()
}

// handleArchiveTask persists one terminal session snapshot for analytics.
func handleArchiveTask(ctx context.Context, task *asynq.Task) error {
	var p tasks.ArchivePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		log.Printf("[ArchiveHandler] invalid payload: %v", err)
		return err
	}

	record := map[string]any{
		"sessionId":  p.Session.SessionID,
		"userId":     p.Session.UserID,
		"module":     p.Session.Module,
		"productRef": p.Session.ProductRef,
		"basePrice":  p.Session.BasePrice,
		"userOffer":  p.Session.UserOffer,
		"state":      p.Session.State,
		"attempt":    p.Session.Attempt,
		"resets":     p.Session.Resets,
		"orderRef":   p.Session.OrderRef,
		"archivedAt": time.Now(),
	}
	if p.Session.CounterOffer != nil {
		record["counterOffer"] = *p.Session.CounterOffer
	}

	if _, err := database.Collection("negotiation_archive").InsertOne(ctx, record); err != nil {
		log.Printf("[ArchiveHandler] failed to archive session %s: %v", p.Session.SessionID, err)
		return err
	}

	log.Printf("[ArchiveHandler] archived session %s (%s)", p.Session.SessionID, p.Session.State)
	return nil
}
