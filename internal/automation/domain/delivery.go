package domain

import (
	"fmt"
	"time"

	"recruitment_backend/internal/events"

	"github.com/google/uuid"
)

// DeliveryStatus is the persisted state of one logical send.
type DeliveryStatus string

const (
	DeliveryDispatched DeliveryStatus = "dispatched"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliverySkipped    DeliveryStatus = "skipped"
)

// DeliveryRecord is written once per (event, automation) pair that reaches
// rendering, and updated in place across retries.
type DeliveryRecord struct {
	ID           uuid.UUID
	AutomationID uuid.UUID
	EntityType   events.EntityType
	EntityID     uuid.UUID
	CompanyID    *uuid.UUID
	DedupeKey    string
	Status       DeliveryStatus
	Attempts     int
	Error        *string
	Provider     *string
	MessageID    *string
	Recipients   []string
	Subject      string
	ArchiveKey   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DedupeKey identifies one (entity event, automation) pair. Reprocessing the
// same event yields the same key.
func DedupeKey(entityID, automationID uuid.UUID, eventAt time.Time) string {
	return fmt.Sprintf("%s:%s:%d", entityID, automationID, eventAt.UTC().UnixNano())
}
