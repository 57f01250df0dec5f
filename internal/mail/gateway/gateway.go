// Package gateway resolves the mail configuration for a company and delivers
// messages through it, retrying transient provider failures.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"recruitment_backend/internal/mail/domain"
	"recruitment_backend/internal/mail/provider"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
)

// ConfigSource resolves the active configuration for a company: the one
// linked to it, else the active default. It returns
// domain.ErrNoProviderConfigured when neither exists.
type ConfigSource interface {
	Resolve(ctx context.Context, companyID *uuid.UUID) (domain.Configuration, error)
}

// Decrypter opens stored secrets.
type Decrypter interface {
	DecryptOptional(encrypted *string) (string, error)
}

// SenderFactory builds a provider adapter for a configuration.
type SenderFactory func(ctx context.Context, cfg domain.Configuration, creds domain.Credentials) (provider.Sender, error)

// Options tune retry and caching.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CacheTTL    time.Duration
}

// Attempt reports one try of a logical send. Final is set on the last
// attempt, successful or not.
type Attempt struct {
	Number   int
	Provider domain.ProviderType
	Err      error
	Final    bool
}

// AttemptFunc observes attempts, e.g. to update a delivery record in place.
type AttemptFunc func(Attempt)

// DeliveryResult describes an accepted message.
type DeliveryResult struct {
	Provider  domain.ProviderType
	MessageID string
	Attempts  int
}

// ConfigurationError means a configuration exists but cannot be used, for
// example because its secrets do not decrypt. It is never retried.
type ConfigurationError struct {
	ConfigurationID uuid.UUID
	Err             error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mail configuration %s unusable: %v", e.ConfigurationID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type cacheEntry struct {
	sender    provider.Sender
	expiresAt time.Time
}

// Gateway is safe for concurrent use.
type Gateway struct {
	source  ConfigSource
	cipher  Decrypter
	factory SenderFactory
	opts    Options
	log     *logger.Logger

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration

	mu         sync.Mutex
	cache      map[string]cacheEntry
	generation uint64
}

// New creates a gateway. Zero option values fall back to 3 attempts,
// 500ms base delay and 10s max delay; a zero CacheTTL disables caching.
func New(source ConfigSource, cipher Decrypter, factory SenderFactory, opts Options, log *logger.Logger) *Gateway {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = 10 * time.Second
	}
	return &Gateway{
		source:  source,
		cipher:  cipher,
		factory: factory,
		opts:    opts,
		log:     log,
		now:     time.Now,
		sleep:   sleepContext,
		jitter:  fullJitter,
		cache:   make(map[string]cacheEntry),
	}
}

func fullJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

// Send resolves the company's provider and delivers msg. Transient failures
// are retried with exponential backoff and full jitter up to MaxAttempts;
// permanent failures and configuration problems return immediately.
// onAttempt may be nil.
func (g *Gateway) Send(ctx context.Context, companyID *uuid.UUID, msg domain.Message, onAttempt AttemptFunc) (DeliveryResult, error) {
	if len(msg.To) == 0 {
		return DeliveryResult{}, errors.New("message has no recipients")
	}

	sender, err := g.senderFor(ctx, companyID)
	if err != nil {
		return DeliveryResult{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := g.sleep(ctx, g.backoff(attempt-1)); err != nil {
				return DeliveryResult{}, fmt.Errorf("send aborted after %d attempts: %w", attempt-1, lastErr)
			}
		}

		result, err := sender.Send(ctx, msg)
		retry := err != nil && domain.IsTransient(err) && attempt < g.opts.MaxAttempts && ctx.Err() == nil

		g.log.DeliveryAttempt(string(sender.Provider()), attempt, msg.To, err)
		if onAttempt != nil {
			onAttempt(Attempt{Number: attempt, Provider: sender.Provider(), Err: err, Final: !retry})
		}

		if err == nil {
			return DeliveryResult{Provider: sender.Provider(), MessageID: result.MessageID, Attempts: attempt}, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return DeliveryResult{}, lastErr
}

// backoff returns the delay before retry n (1-based).
func (g *Gateway) backoff(n int) time.Duration {
	d := g.opts.BaseDelay
	for i := 1; i < n && d < g.opts.MaxDelay; i++ {
		d *= 2
	}
	if d > g.opts.MaxDelay {
		d = g.opts.MaxDelay
	}
	return g.jitter(d)
}

// Invalidate drops the cached sender for one company. A nil companyID drops
// the default entry.
func (g *Gateway) Invalidate(companyID *uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, cacheKeyFor(companyID))
	g.generation++
}

// InvalidateAll drops every cached sender. Changes to the default
// configuration affect every company that falls back to it.
func (g *Gateway) InvalidateAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = make(map[string]cacheEntry)
	g.generation++
}

func (g *Gateway) senderFor(ctx context.Context, companyID *uuid.UUID) (provider.Sender, error) {
	key := cacheKeyFor(companyID)

	g.mu.Lock()
	entry, ok := g.cache[key]
	gen := g.generation
	g.mu.Unlock()
	if ok && g.now().Before(entry.expiresAt) {
		return entry.sender, nil
	}

	cfg, err := g.source.Resolve(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsActive {
		return nil, domain.ErrNoProviderConfigured
	}

	creds, err := g.decrypt(cfg)
	if err != nil {
		return nil, &ConfigurationError{ConfigurationID: cfg.ID, Err: err}
	}
	sender, err := g.factory(ctx, cfg, creds)
	if err != nil {
		return nil, &ConfigurationError{ConfigurationID: cfg.ID, Err: err}
	}

	if g.opts.CacheTTL > 0 {
		g.mu.Lock()
		if gen == g.generation {
			g.cache[key] = cacheEntry{sender: sender, expiresAt: g.now().Add(g.opts.CacheTTL)}
		}
		g.mu.Unlock()
	}
	return sender, nil
}

func (g *Gateway) decrypt(cfg domain.Configuration) (domain.Credentials, error) {
	var (
		creds domain.Credentials
		err   error
	)
	if creds.SMTPPassword, err = g.cipher.DecryptOptional(cfg.SMTPPasswordEnc); err != nil {
		return creds, fmt.Errorf("smtp password: %w", err)
	}
	if creds.APIKey, err = g.cipher.DecryptOptional(cfg.APIKeyEnc); err != nil {
		return creds, fmt.Errorf("api key: %w", err)
	}
	if creds.APISecret, err = g.cipher.DecryptOptional(cfg.APISecretEnc); err != nil {
		return creds, fmt.Errorf("api secret: %w", err)
	}
	return creds, nil
}

func cacheKeyFor(companyID *uuid.UUID) string {
	if companyID == nil {
		return "default"
	}
	return companyID.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
