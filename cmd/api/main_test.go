package main

import (
	"testing"
	"time"

	"recruitment_backend/platform/logger"
)

type queueConfig struct{ redisURL string }

func (c queueConfig) GetRedisURL() string                  { return c.redisURL }
func (c queueConfig) GetRedisTLSInsecure() bool            { return false }
func (c queueConfig) GetAsynqQueueName() string            { return "automations" }
func (c queueConfig) GetAsynqConcurrency() int             { return 1 }
func (c queueConfig) GetEntityLockTTL() time.Duration      { return time.Minute }
func (c queueConfig) GetDeliveryRetention() time.Duration  { return time.Hour }
func (c queueConfig) GetDeliveryStaleAfter() time.Duration { return time.Minute }
func (c queueConfig) IsSchedulerEnabled() bool             { return c.redisURL != "" }

func TestEntityQueueOptionalWithoutRedis(t *testing.T) {
	q, err := initEntityQueue(queueConfig{}, logger.Discard())
	if err != nil || q != nil {
		t.Fatalf("expected no queue and no error, got %v, %v", q, err)
	}
}

func TestEntityQueueFailureIsReported(t *testing.T) {
	q, err := initEntityQueue(queueConfig{redisURL: "memcached://cache:11211"}, logger.Discard())
	if err == nil {
		t.Fatalf("a configured but unusable queue must fail startup, got %v", q)
	}
}

func TestEntityQueueClient(t *testing.T) {
	q, err := initEntityQueue(queueConfig{redisURL: "redis://127.0.0.1:6379/0"}, logger.Discard())
	if err != nil || q == nil {
		t.Fatalf("expected a queue client, got %v, %v", q, err)
	}
	_ = q.Close()
}
