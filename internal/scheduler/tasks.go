package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"recruitment_backend/internal/events"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskAutomationEntityEvent = "automation.entity_event"

// EntityEventPayload carries an EntityChanged across processes.
// ChangedFields keeps the nil/empty distinction: null means unknown.
type EntityEventPayload struct {
	EntityType    string    `json:"entityType"`
	Operation     string    `json:"operation"`
	EntityID      string    `json:"entityId"`
	CompanyID     *string   `json:"companyId,omitempty"`
	ChangedFields []string  `json:"changedFields"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func NewEntityEventTask(ev events.EntityChanged) (*asynq.Task, error) {
	payload := EntityEventPayload{
		EntityType:    string(ev.EntityType),
		Operation:     string(ev.Operation),
		EntityID:      ev.EntityID.String(),
		ChangedFields: ev.ChangedFields,
		OccurredAt:    ev.OccurredAt(),
	}
	if ev.CompanyID != nil {
		id := ev.CompanyID.String()
		payload.CompanyID = &id
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutomationEntityEvent, data), nil
}

// entityEventTaskID makes re-enqueueing the same committed change a no-op.
func entityEventTaskID(ev events.EntityChanged) string {
	return fmt.Sprintf("%s:%s:%s:%d", ev.EntityType, ev.EntityID, ev.Operation, ev.OccurredAt().UnixNano())
}

func ParseEntityEventPayload(task *asynq.Task) (events.EntityChanged, error) {
	var payload EntityEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return events.EntityChanged{}, err
	}

	entityType, err := events.ParseEntityType(payload.EntityType)
	if err != nil {
		return events.EntityChanged{}, err
	}
	op, err := events.ParseOperation(payload.Operation)
	if err != nil {
		return events.EntityChanged{}, err
	}
	entityID, err := uuid.Parse(payload.EntityID)
	if err != nil {
		return events.EntityChanged{}, err
	}
	var companyID *uuid.UUID
	if payload.CompanyID != nil {
		id, err := uuid.Parse(*payload.CompanyID)
		if err != nil {
			return events.EntityChanged{}, err
		}
		companyID = &id
	}

	return events.NewEntityChanged(entityType, op, entityID, companyID, payload.ChangedFields, payload.OccurredAt), nil
}
