// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// AutomationConfig provides settings for the automation engine.
type AutomationConfig interface {
	GetPublicBaseURL() string
	GetDefaultLocale() string
	GetAutomationConcurrency() int
	GetRegistryCacheTTL() time.Duration
}

// MailConfig provides settings for the mail gateway.
type MailConfig interface {
	GetMailCredentialsSecret() string
	GetMailMaxAttempts() int
	GetMailRetryBaseDelay() time.Duration
	GetMailRetryMaxDelay() time.Duration
	GetMailConfigCacheTTL() time.Duration
}

// EventBusConfig provides settings for the in-process event bus.
type EventBusConfig interface {
	GetEventBusWorkers() int
	GetEventBusQueueSize() int
}

// SchedulerConfig provides settings for the asynq queue and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetEntityLockTTL() time.Duration
	GetDeliveryRetention() time.Duration
	GetDeliveryStaleAfter() time.Duration
	IsSchedulerEnabled() bool
}

// StorageConfig provides settings for the MinIO delivery archive.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketDeliveryArchive() string
	IsMinIOEnabled() bool
}

// ObservabilityConfig provides settings for error tracking.
type ObservabilityConfig interface {
	GetSentryDSN() string
	GetEnv() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                        string
	HTTPAddr                   string
	DatabaseURL                string
	JWTAccessSecret            string
	CORSAllowAll               bool
	CORSOrigins                []string
	CORSAllowCreds             bool
	PublicBaseURL              string
	DefaultLocale              string
	AutomationConcurrency      int
	RegistryCacheTTL           time.Duration
	MailCredentialsSecret      string
	MailMaxAttempts            int
	MailRetryBaseDelay         time.Duration
	MailRetryMaxDelay          time.Duration
	MailConfigCacheTTL         time.Duration
	EventBusWorkers            int
	EventBusQueueSize          int
	RedisURL                   string
	RedisTLSInsecure           bool
	AsynqQueueName             string
	AsynqConcurrency           int
	EntityLockTTL              time.Duration
	DeliveryRetention          time.Duration
	DeliveryStaleAfter         time.Duration
	MinIOEndpoint              string
	MinIOAccessKey             string
	MinIOSecretKey             string
	MinIOUseSSL                bool
	MinioBucketDeliveryArchive string
	SentryDSN                  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// AutomationConfig implementation
func (c *Config) GetPublicBaseURL() string           { return c.PublicBaseURL }
func (c *Config) GetDefaultLocale() string           { return c.DefaultLocale }
func (c *Config) GetAutomationConcurrency() int      { return c.AutomationConcurrency }
func (c *Config) GetRegistryCacheTTL() time.Duration { return c.RegistryCacheTTL }

// MailConfig implementation
func (c *Config) GetMailCredentialsSecret() string     { return c.MailCredentialsSecret }
func (c *Config) GetMailMaxAttempts() int              { return c.MailMaxAttempts }
func (c *Config) GetMailRetryBaseDelay() time.Duration { return c.MailRetryBaseDelay }
func (c *Config) GetMailRetryMaxDelay() time.Duration  { return c.MailRetryMaxDelay }
func (c *Config) GetMailConfigCacheTTL() time.Duration { return c.MailConfigCacheTTL }

// EventBusConfig implementation
func (c *Config) GetEventBusWorkers() int   { return c.EventBusWorkers }
func (c *Config) GetEventBusQueueSize() int { return c.EventBusQueueSize }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) IsSchedulerEnabled() bool  { return c.RedisURL != "" }

func (c *Config) GetEntityLockTTL() time.Duration      { return c.EntityLockTTL }
func (c *Config) GetDeliveryRetention() time.Duration  { return c.DeliveryRetention }
func (c *Config) GetDeliveryStaleAfter() time.Duration { return c.DeliveryStaleAfter }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketDeliveryArchive() string {
	return c.MinioBucketDeliveryArchive
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// ObservabilityConfig implementation
func (c *Config) GetSentryDSN() string { return c.SentryDSN }
func (c *Config) GetEnv() string       { return c.Env }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                        getEnv("APP_ENV", "development"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		JWTAccessSecret:            getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:               corsAllowAll,
		CORSOrigins:                corsOrigins,
		CORSAllowCreds:             strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		PublicBaseURL:              getEnv("PUBLIC_BASE_URL", "http://localhost:3000"),
		DefaultLocale:              getEnv("DEFAULT_LOCALE", "fr-FR"),
		AutomationConcurrency:      mustInt(getEnv("AUTOMATION_CONCURRENCY", "4")),
		RegistryCacheTTL:           mustDuration(getEnv("AUTOMATION_REGISTRY_CACHE_TTL", "30s")),
		MailCredentialsSecret:      getEnv("MAIL_CREDENTIALS_SECRET", ""),
		MailMaxAttempts:            mustInt(getEnv("MAIL_MAX_ATTEMPTS", "5")),
		MailRetryBaseDelay:         mustDuration(getEnv("MAIL_RETRY_BASE_DELAY", "500ms")),
		MailRetryMaxDelay:          mustDuration(getEnv("MAIL_RETRY_MAX_DELAY", "10s")),
		MailConfigCacheTTL:         mustDuration(getEnv("MAIL_CONFIG_CACHE_TTL", "5m")),
		EventBusWorkers:            mustInt(getEnv("EVENT_BUS_WORKERS", "8")),
		EventBusQueueSize:          mustInt(getEnv("EVENT_BUS_QUEUE_SIZE", "1024")),
		RedisURL:                   getEnv("REDIS_URL", ""),
		RedisTLSInsecure:           strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:             getEnv("ASYNQ_QUEUE", "automations"),
		AsynqConcurrency:           mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		EntityLockTTL:              mustDuration(getEnv("ENTITY_LOCK_TTL", "2m")),
		DeliveryRetention:          mustDuration(getEnv("DELIVERY_RETENTION", "2160h")),
		DeliveryStaleAfter:         mustDuration(getEnv("DELIVERY_STALE_AFTER", "30m")),
		MinIOEndpoint:              getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:             getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:             getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketDeliveryArchive: getEnv("MINIO_BUCKET_DELIVERY_ARCHIVE", "automation-deliveries"),
		SentryDSN:                  getEnv("SENTRY_DSN", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.MailCredentialsSecret == "" {
		return nil, fmt.Errorf("MAIL_CREDENTIALS_SECRET is required")
	}
	if cfg.MailMaxAttempts < 1 {
		return nil, fmt.Errorf("MAIL_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
