package transport

import (
	"recruitment_backend/internal/automation/condition"
	"recruitment_backend/internal/automation/domain"
	"recruitment_backend/internal/events"
	"recruitment_backend/platform/validator"
)

// RegisterValidations registers the automation enum tags.
func RegisterValidations(val *validator.Validator) error {
	entityTypes := make([]string, 0, len(events.EntityTypes))
	for _, t := range events.EntityTypes {
		entityTypes = append(entityTypes, string(t))
	}
	if err := val.RegisterEnum("entity_type", entityTypes...); err != nil {
		return err
	}

	triggers := make([]string, 0, len(domain.TriggerEvents))
	for _, t := range domain.TriggerEvents {
		triggers = append(triggers, string(t))
	}
	if err := val.RegisterEnum("trigger_event", triggers...); err != nil {
		return err
	}

	operators := make([]string, 0, len(condition.Operators))
	for _, op := range condition.Operators {
		operators = append(operators, string(op))
	}
	return val.RegisterEnum("condition_operator", operators...)
}
