package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"recruitment_backend/internal/events"
	"recruitment_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const entityEventMaxRetry = 12

type Client struct {
	client *asynq.Client
	queue  string
}

// EntityEventQueue hands committed entity changes to the worker process.
type EntityEventQueue interface {
	EnqueueEntityEvent(ctx context.Context, ev events.EntityChanged) error
}

var _ EntityEventQueue = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueEntityEvent schedules an entity change for processing. Enqueueing
// the same change twice is not an error.
func (c *Client) EnqueueEntityEvent(ctx context.Context, ev events.EntityChanged) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewEntityEventTask(ev)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(entityEventTaskID(ev)),
		asynq.MaxRetry(entityEventMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// Handle implements events.Handler so the client can subscribe to the bus
// in place of the in-process orchestrator.
func (c *Client) Handle(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.EntityChanged)
	if !ok {
		return nil
	}
	if err := c.EnqueueEntityEvent(ctx, ev); err != nil {
		return fmt.Errorf("enqueue %s %s: %w", ev.EntityType, ev.EntityID, err)
	}
	return nil
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
