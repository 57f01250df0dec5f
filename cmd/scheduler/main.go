package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recruitment_backend/internal/adapters/storage"
	"recruitment_backend/internal/automation"
	"recruitment_backend/internal/automation/archive"
	"recruitment_backend/internal/events"
	"recruitment_backend/internal/mail"
	"recruitment_backend/internal/scheduler"
	"recruitment_backend/platform/config"
	"recruitment_backend/platform/db"
	"recruitment_backend/platform/distlock"
	"recruitment_backend/platform/invalidation"
	"recruitment_backend/platform/logger"
	"recruitment_backend/platform/redisconn"
	"recruitment_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const deliveryCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	flushSentry, err := logger.EnableSentry(cfg.GetSentryDSN(), cfg.Env)
	if err != nil {
		log.Warn("sentry disabled", "error", err)
	} else {
		defer flushSentry()
	}
	log.Info("starting scheduler", "env", cfg.Env)

	if !cfg.IsSchedulerEnabled() {
		panic("scheduler requires REDIS_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	var redisClient *redis.Client
	if err := withRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		c, err := redisconn.New(ctx, cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
		if err != nil {
			return err
		}
		redisClient = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = redisClient.Close() }()

	// Admin writes happen in the API process; their invalidation notices
	// arrive over Redis.
	broadcaster := invalidation.NewRedis(redisClient, invalidation.DefaultChannel, log)
	go func() {
		if err := broadcaster.Listen(ctx, nil); err != nil {
			log.Error("cache invalidation listener stopped", "error", err)
		}
	}()
	locker := distlock.Chain{
		distlock.NewLocalLocker(),
		distlock.NewRedisLocker(redisClient, cfg.GetEntityLockTTL()),
	}

	// The worker calls the orchestrator directly; the bus only carries
	// notifications raised while processing.
	eventBus := events.NewInMemoryBus(log, events.BusOptions{
		Workers:   cfg.GetEventBusWorkers(),
		QueueSize: cfg.GetEventBusQueueSize(),
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = eventBus.Close(closeCtx)
	}()

	val := validator.New()

	mailModule, err := mail.NewModule(pool, cfg, val, broadcaster, log)
	if err != nil {
		log.Error("failed to initialize mail module", "error", err)
		panic("failed to initialize mail module: " + err.Error())
	}
	automationModule, err := automation.NewModule(pool, cfg, val, eventBus, broadcaster, mailModule.Gateway(), locker, log)
	if err != nil {
		log.Error("failed to initialize automation module", "error", err)
		panic("failed to initialize automation module: " + err.Error())
	}

	cleanup := scheduler.NewDeliveryCleanup(automationModule.Deliveries(), log,
		deliveryCleanupInterval, cfg.GetDeliveryRetention(), cfg.GetDeliveryStaleAfter())

	if cfg.IsMinIOEnabled() {
		storageSvc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		deliveryArchive := archive.New(storageSvc, cfg.GetMinioBucketDeliveryArchive())
		automationModule.SetArchive(deliveryArchive)
		cleanup.SetArchive(deliveryArchive)
	}

	go cleanup.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, automationModule.Orchestrator(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
