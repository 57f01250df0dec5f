// Package changes detects committed writes to tracked entities and publishes
// them as EntityChanged events.
//
// Writers run their statements through Tracker.InTx and report each row they
// touch on the Recorder. Nothing is published unless the transaction
// commits. Set-based writes (CopyFrom, UPDATE ... WHERE over many rows) that
// do not report rows individually produce no events; such writers must call
// Tracker.Notify for every affected entity after their commit.
package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"recruitment_backend/internal/events"
	"recruitment_backend/platform/db"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxFunc performs writes inside tx and reports them on rec.
type TxFunc func(ctx context.Context, tx pgx.Tx, rec *Recorder) error

// Tracker wraps transactions and publishes their entity changes after commit.
type Tracker struct {
	pool db.TxBeginner
	bus  events.Bus
	log  *logger.Logger
	now  func() time.Time
}

// NewTracker creates a Tracker.
func NewTracker(pool db.TxBeginner, bus events.Bus, log *logger.Logger) *Tracker {
	return &Tracker{pool: pool, bus: bus, log: log, now: time.Now}
}

// InTx runs fn in a transaction. Recorded changes are published, in the order
// they were first recorded, only after Commit succeeds.
func (t *Tracker) InTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				t.log.WithContext(ctx).Warn("rollback failed", slog.String("error", rbErr.Error()))
			}
		}
	}()

	rec := &Recorder{}
	if err = fn(ctx, tx, rec); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	at := t.now()
	for _, c := range rec.drain() {
		t.bus.Publish(ctx, events.NewEntityChanged(c.entityType, c.op, c.entityID, c.companyID, c.fields, at))
	}
	return nil
}

// Notify publishes a change that was committed outside InTx, typically by a
// bulk writer. ChangedFields is left unknown.
func (t *Tracker) Notify(ctx context.Context, entityType events.EntityType, op events.Operation, entityID uuid.UUID, companyID *uuid.UUID) error {
	if !entityType.Valid() {
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	if !op.Valid() {
		return fmt.Errorf("unknown operation %q", op)
	}
	if entityID == uuid.Nil {
		return errors.New("entity id is required")
	}
	t.bus.Publish(ctx, events.NewEntityChanged(entityType, op, entityID, companyID, nil, t.now()))
	return nil
}

type change struct {
	entityType events.EntityType
	op         events.Operation
	entityID   uuid.UUID
	companyID  *uuid.UUID
	fields     []string
	dropped    bool
}

// Recorder collects row changes made inside one transaction. Several changes
// to the same entity collapse into the net effect seen after commit: an
// insert followed by updates is one create, an insert followed by a delete
// is nothing, updates followed by a delete are one delete, and consecutive
// updates merge their changed fields.
type Recorder struct {
	mu      sync.Mutex
	changes []*change
	index   map[string]*change
}

// Inserted records a new row.
func (r *Recorder) Inserted(entityType events.EntityType, id uuid.UUID, companyID *uuid.UUID) {
	r.record(entityType, events.OperationCreate, id, companyID, nil)
}

// Updated records a changed row and the columns whose values changed. Pass
// no columns when they are not known; the change then counts as touching
// every column.
func (r *Recorder) Updated(entityType events.EntityType, id uuid.UUID, companyID *uuid.UUID, changedFields ...string) {
	r.record(entityType, events.OperationUpdate, id, companyID, changedFields)
}

// Deleted records a removed row.
func (r *Recorder) Deleted(entityType events.EntityType, id uuid.UUID, companyID *uuid.UUID) {
	r.record(entityType, events.OperationDelete, id, companyID, nil)
}

func (r *Recorder) record(entityType events.EntityType, op events.Operation, id uuid.UUID, companyID *uuid.UUID, fields []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		r.index = make(map[string]*change)
	}

	key := string(entityType) + ":" + id.String()
	existing, ok := r.index[key]
	if !ok || existing.dropped {
		c := &change{entityType: entityType, op: op, entityID: id, companyID: companyID}
		if op == events.OperationUpdate && len(fields) > 0 {
			c.fields = mergeFields(nil, fields)
		}
		r.changes = append(r.changes, c)
		r.index[key] = c
		return
	}

	if companyID != nil {
		existing.companyID = companyID
	}
	switch {
	case existing.op == events.OperationCreate && op == events.OperationDelete:
		existing.dropped = true
	case existing.op == events.OperationCreate:
		// still a create from the outside
	case op == events.OperationDelete:
		existing.op = events.OperationDelete
		existing.fields = nil
	case existing.op == events.OperationUpdate && op == events.OperationUpdate:
		if existing.fields == nil || len(fields) == 0 {
			existing.fields = nil
		} else {
			existing.fields = mergeFields(existing.fields, fields)
		}
	default:
		// delete then re-insert of the same id: the row existed before and
		// after commit, with unknown changes
		existing.op = events.OperationUpdate
		existing.fields = nil
	}
}

func (r *Recorder) drain() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]change, 0, len(r.changes))
	for _, c := range r.changes {
		if !c.dropped {
			out = append(out, *c)
		}
	}
	r.changes = nil
	r.index = nil
	return out
}

// mergeFields returns the union of a and b keeping first-seen order.
func mergeFields(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
