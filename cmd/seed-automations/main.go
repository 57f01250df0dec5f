package main

import (
	"context"
	"flag"
	"os"

	"recruitment_backend/internal/automation"
	"recruitment_backend/internal/automation/seed"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/config"
	"recruitment_backend/platform/db"
	"recruitment_backend/platform/invalidation"
	"recruitment_backend/platform/logger"
	"recruitment_backend/platform/redisconn"
	"recruitment_backend/platform/validator"
)

func main() {
	path := flag.String("file", "automations.yaml", "seed file with automation definitions")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting automation seed", "file", *path)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Error("failed to open seed file", "error", err)
		panic("failed to open seed file: " + err.Error())
	}
	defer f.Close()

	doc, err := seed.Parse(f)
	if err != nil {
		log.Error("invalid seed file", "error", err)
		panic("invalid seed file: " + err.Error())
	}

	// Running API and scheduler processes drop their registry cache when
	// the seed publishes over Redis.
	var broadcaster invalidation.Broadcaster = invalidation.NewLocal()
	if cfg.GetRedisURL() != "" {
		client, err := redisconn.New(ctx, cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
		if err != nil {
			log.Warn("redis unavailable; running processes keep cached automations until their TTL", "error", err)
		} else {
			defer func() { _ = client.Close() }()
			broadcaster = invalidation.NewRedis(client, invalidation.DefaultChannel, log)
		}
	}

	eventBus := events.NewInMemoryBus(log, events.BusOptions{Workers: 1, QueueSize: 16})
	defer func() { _ = eventBus.Close(ctx) }()

	module, err := automation.NewModule(pool, cfg, validator.New(), eventBus, broadcaster, nil, nil, log)
	if err != nil {
		log.Error("failed to initialize automation module", "error", err)
		panic("failed to initialize automation module: " + err.Error())
	}

	res, err := seed.Apply(ctx, module.Service(), doc, log)
	if err != nil {
		log.Error("seed failed", "error", err, "created", res.Created)
		panic("seed failed: " + err.Error())
	}
	log.Info("automation seed complete", "created", res.Created, "skipped", res.Skipped)
}
