package scheduler

import (
	"context"
	"time"

	"recruitment_backend/internal/automation/repository"
	"recruitment_backend/platform/logger"
)

const (
	defaultDeliveryCleanupInterval = time.Hour
	defaultDeliveryRetention       = 90 * 24 * time.Hour
	defaultDeliveryStaleAfter      = 30 * time.Minute

	staleDeliveryReason = "abandoned while dispatching"
)

// ArchiveRemover deletes archived messages of removed records.
type ArchiveRemover interface {
	Remove(ctx context.Context, key string) error
}

// DeliveryCleanup periodically fails delivery records abandoned mid-send and
// removes old finished ones.
type DeliveryCleanup struct {
	repo       repository.DeliveryMaintenance
	archive    ArchiveRemover
	log        *logger.Logger
	interval   time.Duration
	retention  time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewDeliveryCleanup(repo repository.DeliveryMaintenance, log *logger.Logger, interval, retention, staleAfter time.Duration) *DeliveryCleanup {
	if interval <= 0 {
		interval = defaultDeliveryCleanupInterval
	}
	if retention <= 0 {
		retention = defaultDeliveryRetention
	}
	if staleAfter <= 0 {
		staleAfter = defaultDeliveryStaleAfter
	}

	return &DeliveryCleanup{
		repo:       repo,
		log:        log,
		interval:   interval,
		retention:  retention,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetArchive makes retention cleanup also delete archived messages.
func (c *DeliveryCleanup) SetArchive(a ArchiveRemover) {
	c.archive = a
}

func (c *DeliveryCleanup) Run(ctx context.Context) {
	if c == nil || c.repo == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *DeliveryCleanup) cleanup(ctx context.Context) {
	now := c.now()

	failed, err := c.repo.FailStale(ctx, now.Add(-c.staleAfter), staleDeliveryReason)
	if err != nil {
		c.log.Warn("stale delivery sweep failed", "error", err)
	} else if failed > 0 {
		c.log.Warn("stale delivery records marked failed", "count", failed)
	}

	deleted, keys, err := c.repo.DeleteFinishedBefore(ctx, now.Add(-c.retention))
	if err != nil {
		c.log.Warn("delivery retention cleanup failed", "error", err)
	}

	if deleted > 0 {
		c.log.Info("delivery retention cleanup deleted records", "deleted", deleted)
	}

	if c.archive == nil {
		return
	}
	for _, key := range keys {
		if err := c.archive.Remove(ctx, key); err != nil {
			c.log.Warn("delivery archive cleanup failed", "key", key, "error", err)
		}
	}
}
