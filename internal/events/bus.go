// Package events re-exports the platform event bus for convenience.
// This allows internal modules to import events from internal/events
// while the implementation lives in platform/events.
package events

import (
	platformevents "recruitment_backend/platform/events"
	"recruitment_backend/platform/logger"
)

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = platformevents.InMemoryBus

// BusOptions is a type alias to the platform BusOptions
type BusOptions = platformevents.BusOptions

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger, opts BusOptions) *InMemoryBus {
	return platformevents.NewInMemoryBus(log, opts)
}
