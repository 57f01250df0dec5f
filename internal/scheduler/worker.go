package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/config"
	"recruitment_backend/platform/distlock"
	"recruitment_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const lockedRetryDelay = 2 * time.Second

// EntityEventHandler processes one entity change.
type EntityEventHandler interface {
	HandleEntityChanged(ctx context.Context, ev events.EntityChanged) ([]domain.Outcome, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler EntityEventHandler
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, handler EntityEventHandler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		RetryDelayFunc: retryDelay,
		// A held entity lock is contention, not a failure.
		IsFailure: func(err error) bool { return !errors.Is(err, distlock.ErrLocked) },
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		handler: handler,
		log:     log,
	}

	mux.HandleFunc(TaskAutomationEntityEvent, w.handleEntityEvent)

	return w, nil
}

func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	if errors.Is(err, distlock.ErrLocked) {
		return lockedRetryDelay
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleEntityEvent(ctx context.Context, task *asynq.Task) error {
	ev, err := ParseEntityEventPayload(task)
	if err != nil {
		return fmt.Errorf("parse entity event: %v: %w", err, asynq.SkipRetry)
	}

	outcomes, err := w.handler.HandleEntityChanged(ctx, ev)
	if err != nil {
		return err
	}

	if len(outcomes) > 0 {
		w.log.WithContext(ctx).Info("entity event processed",
			"entityType", ev.EntityType,
			"entityId", ev.EntityID,
			"operation", ev.Operation,
			"automations", len(outcomes),
		)
	}
	return nil
}
