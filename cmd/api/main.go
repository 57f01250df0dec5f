package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recruitment_backend/internal/adapters/storage"
	"recruitment_backend/internal/automation"
	"recruitment_backend/internal/automation/archive"
	"recruitment_backend/internal/events"
	apphttp "recruitment_backend/internal/http"
	"recruitment_backend/internal/http/router"
	"recruitment_backend/internal/mail"
	"recruitment_backend/internal/mailtemplate"
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	flushSentry, err := logger.EnableSentry(cfg.GetSentryDSN(), cfg.Env)
	if err != nil {
		log.Warn("sentry disabled", "error", err)
	} else {
		defer flushSentry()
	}
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log, events.BusOptions{
		Workers:   cfg.GetEventBusWorkers(),
		QueueSize: cfg.GetEventBusQueueSize(),
	})

	redisClient := initRedis(ctx, cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	broadcaster, locker := initCoordination(ctx, cfg, redisClient, log)

	// With Redis configured the in-process path would drop events whose
	// entity lock is held elsewhere, so the queue is mandatory.
	entityQueue, err := initEntityQueue(cfg, log)
	if err != nil {
		log.Error("failed to initialize automation queue client", "error", err)
		panic("failed to initialize automation queue client: " + err.Error())
	}
	if entityQueue != nil {
		defer func() { _ = entityQueue.Close() }()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

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
	// With a queue, the scheduler process runs the automations.
	var forward events.Handler
	if entityQueue != nil {
		forward = entityQueue
	}
	automationModule.RegisterHandlers(eventBus, forward)

	if archiveStore := initArchive(ctx, cfg, log); archiveStore != nil {
		automationModule.SetArchive(archiveStore)
	}

	templateModule, err := mailtemplate.NewModule(pool, val, log)
	if err != nil {
		log.Error("failed to initialize mail template module", "error", err)
		panic("failed to initialize mail template module: " + err.Error())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			automationModule,
			mailModule,
			templateModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		if err := eventBus.Close(shutdownCtx); err != nil {
			log.Warn("event bus did not drain", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(ctx context.Context, cfg config.SchedulerConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; locks and cache invalidation are process local")
		return nil
	}
	var client *redis.Client
	if err := withRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		c, err := redisconn.New(ctx, cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
		if err != nil {
			return err
		}
		client = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	return client
}

// initCoordination returns the cache invalidation broadcaster and the
// per-entity locker. Without Redis both are process local.
func initCoordination(ctx context.Context, cfg config.SchedulerConfig, client *redis.Client, log *logger.Logger) (invalidation.Broadcaster, distlock.Locker) {
	if client == nil {
		return invalidation.NewLocal(), distlock.NewLocalLocker()
	}

	broadcaster := invalidation.NewRedis(client, invalidation.DefaultChannel, log)
	go func() {
		if err := broadcaster.Listen(ctx, nil); err != nil {
			log.Error("cache invalidation listener stopped", "error", err)
		}
	}()

	locker := distlock.Chain{
		distlock.NewLocalLocker(),
		distlock.NewRedisLocker(client, cfg.GetEntityLockTTL()),
	}
	return broadcaster, locker
}

func initEntityQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, error) {
	if !cfg.IsSchedulerEnabled() {
		log.Warn("REDIS_URL not configured; automations run in the API process")
		return nil, nil
	}
	return scheduler.NewClient(cfg)
}

func initArchive(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) *archive.Archive {
	if !cfg.IsMinIOEnabled() {
		log.Info("MinIO not configured; rendered messages are not archived")
		return nil
	}

	storageSvc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	bucket := cfg.GetMinioBucketDeliveryArchive()
	if err := withRetry(ctx, log, "ensure delivery archive bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("delivery archive initialized", "bucket", bucket)
	return archive.New(storageSvc, bucket)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
