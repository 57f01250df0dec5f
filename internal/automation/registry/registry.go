// Package registry answers which active automations apply to an entity
// event. Lookups are served from a short-lived in-memory cache that admin
// writes invalidate.
package registry

import (
	"context"
	"sync"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Source loads active automations from storage.
type Source interface {
	ListActive(ctx context.Context, entityType events.EntityType, trigger domain.TriggerEvent) ([]domain.Automation, error)
}

type cacheKey struct {
	entityType events.EntityType
	trigger    domain.TriggerEvent
}

type cacheEntry struct {
	automations []domain.Automation
	expiresAt   time.Time
}

// Registry caches active automations per (entity type, trigger). Company
// scoping is applied on every lookup so one entry serves all tenants.
type Registry struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu         sync.RWMutex
	entries    map[cacheKey]cacheEntry
	generation uint64

	group singleflight.Group
}

// New creates a registry. A non-positive ttl disables caching.
func New(source Source, ttl time.Duration) *Registry {
	return &Registry{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Match returns the active automations for entityType and trigger that are
// global or scoped to companyID, in storage order.
func (r *Registry) Match(ctx context.Context, entityType events.EntityType, trigger domain.TriggerEvent, companyID *uuid.UUID) ([]domain.Automation, error) {
	all, err := r.load(ctx, cacheKey{entityType: entityType, trigger: trigger})
	if err != nil {
		return nil, err
	}

	matched := make([]domain.Automation, 0, len(all))
	for _, a := range all {
		if !a.IsActive || a.EntityType != entityType || a.TriggerEvent != trigger {
			continue
		}
		if !a.AppliesTo(companyID) {
			continue
		}
		matched = append(matched, a)
	}
	return matched, nil
}

// Invalidate drops every cached entry.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[cacheKey]cacheEntry)
	r.generation++
}

func (r *Registry) load(ctx context.Context, key cacheKey) ([]domain.Automation, error) {
	if r.ttl > 0 {
		r.mu.RLock()
		entry, ok := r.entries[key]
		r.mu.RUnlock()
		if ok && r.now().Before(entry.expiresAt) {
			return entry.automations, nil
		}
	}

	v, err, _ := r.group.Do(string(key.entityType)+"|"+string(key.trigger), func() (any, error) {
		r.mu.RLock()
		gen := r.generation
		r.mu.RUnlock()

		automations, err := r.source.ListActive(ctx, key.entityType, key.trigger)
		if err != nil {
			return nil, err
		}

		if r.ttl > 0 {
			r.mu.Lock()
			// An invalidation during the load means the result may be stale.
			if gen == r.generation {
				r.entries[key] = cacheEntry{automations: automations, expiresAt: r.now().Add(r.ttl)}
			}
			r.mu.Unlock()
		}
		return automations, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Automation), nil
}
