package repository

import (
	"context"
	"errors"
	"time"

	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"

	"github.com/google/uuid"
)

// ErrEntityNotFound is returned by the loader when the entity row is gone.
var ErrEntityNotFound = errors.New("entity not found")

// AutomationRepository persists automation definitions.
type AutomationRepository interface {
	Create(ctx context.Context, a domain.Automation) (domain.Automation, error)
	Update(ctx context.Context, a domain.Automation) (domain.Automation, error)
	Delete(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) error
	GetByID(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.Automation, error)
	List(ctx context.Context, params ListAutomationsParams) ([]domain.Automation, int, error)
	ListActive(ctx context.Context, entityType events.EntityType, trigger domain.TriggerEvent) ([]domain.Automation, error)
}

// ListAutomationsParams filters the admin listing. A nil CompanyID lists
// every automation; otherwise the company's own plus global ones.
type ListAutomationsParams struct {
	CompanyID    *uuid.UUID
	EntityType   *events.EntityType
	TriggerEvent *domain.TriggerEvent
	ActiveOnly   bool
	Offset       int
	Limit        int
}

// DeliveryRepository persists delivery records.
type DeliveryRepository interface {
	// Insert stores rec unless a record with the same dedupe key exists, in
	// which case the existing record is returned with created=false.
	Insert(ctx context.Context, rec domain.DeliveryRecord) (stored domain.DeliveryRecord, created bool, err error)
	UpdateStatus(ctx context.Context, params UpdateDeliveryParams) error
	// GetByID returns a record owned by companyID. A nil companyID sees every record.
	GetByID(ctx context.Context, companyID *uuid.UUID, id uuid.UUID) (domain.DeliveryRecord, error)
	List(ctx context.Context, params ListDeliveriesParams) ([]domain.DeliveryRecord, int, error)
}

// DeliveryMaintenance is used by the scheduler's periodic cleanup.
type DeliveryMaintenance interface {
	FailStale(ctx context.Context, before time.Time, reason string) (int64, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (deleted int64, archiveKeys []string, err error)
}

// UpdateDeliveryParams moves a record to a new status. Nil pointers keep the
// stored value.
type UpdateDeliveryParams struct {
	ID         uuid.UUID
	Status     domain.DeliveryStatus
	Attempts   int
	Error      *string
	Provider   *string
	MessageID  *string
	ArchiveKey *string
}

// ListDeliveriesParams filters delivery records.
type ListDeliveriesParams struct {
	CompanyID    *uuid.UUID
	AutomationID *uuid.UUID
	Status       *domain.DeliveryStatus
	Offset       int
	Limit        int
}

// Entity is a loaded snapshot plus the tenant facts needed to process it.
type Entity struct {
	Snapshot  domain.Snapshot
	CompanyID *uuid.UUID
	Locale    string
}

// EntityLoader re-reads an entity together with its relations.
type EntityLoader interface {
	Load(ctx context.Context, entityType events.EntityType, id uuid.UUID) (Entity, error)
}
