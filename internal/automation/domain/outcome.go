package domain

import "github.com/google/uuid"

// State is a step of the per-event processing state machine.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateLoaded           State = "LOADED"
	StateMatched          State = "MATCHED"
	StateConditionsPassed State = "CONDITIONS_PASSED"
	StateRendered         State = "RENDERED"
	StateDispatched       State = "DISPATCHED"
	StateDelivered        State = "DELIVERED"
	StateFailed           State = "FAILED"
	StateSkipped          State = "SKIPPED"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed || s == StateSkipped
}

// Outcome is the terminal result of one automation for one event.
type Outcome struct {
	AutomationID uuid.UUID
	State        State
	Reason       string
	DeliveryID   *uuid.UUID
}
