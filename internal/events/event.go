// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"fmt"
	"strings"
	"time"

	"recruitment_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Entity lifecycle
// =============================================================================

// EntityType names a business entity whose lifecycle can trigger automations.
type EntityType string

const (
	EntityCandidate EntityType = "CANDIDATE"
	EntityProject   EntityType = "PROJECT"
	EntityAnalysis  EntityType = "ANALYSIS"
	EntityUser      EntityType = "USER"
)

// EntityTypes lists every supported entity type.
var EntityTypes = []EntityType{EntityCandidate, EntityProject, EntityAnalysis, EntityUser}

// Valid reports whether t is a supported entity type.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEntityType accepts any casing of a supported entity type.
func ParseEntityType(raw string) (EntityType, error) {
	t := EntityType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", raw)
	}
	return t, nil
}

// Operation is a persisted lifecycle change.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Valid reports whether o is a supported operation.
func (o Operation) Valid() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDelete
}

// ParseOperation accepts any casing of a supported operation.
func ParseOperation(raw string) (Operation, error) {
	o := Operation(strings.ToUpper(strings.TrimSpace(raw)))
	if !o.Valid() {
		return "", fmt.Errorf("unknown operation %q", raw)
	}
	return o, nil
}

// EntityChanged is published after a committed create, update or delete of a
// tracked entity. It carries identifiers only; subscribers re-read state.
// ChangedFields lists the columns touched by an update. A nil slice means
// the writer did not report them.
type EntityChanged struct {
	BaseEvent
	EntityType    EntityType `json:"entityType"`
	Operation     Operation  `json:"operation"`
	EntityID      uuid.UUID  `json:"entityId"`
	CompanyID     *uuid.UUID `json:"companyId,omitempty"`
	ChangedFields []string   `json:"changedFields,omitempty"`
}

func (e EntityChanged) EventName() string { return "entity.changed" }

// NewEntityChanged stamps an EntityChanged with the given commit time.
func NewEntityChanged(entityType EntityType, op Operation, entityID uuid.UUID, companyID *uuid.UUID, changed []string, at time.Time) EntityChanged {
	return EntityChanged{
		BaseEvent:     BaseEvent{Timestamp: at.UTC()},
		EntityType:    entityType,
		Operation:     op,
		EntityID:      entityID,
		CompanyID:     companyID,
		ChangedFields: changed,
	}
}
