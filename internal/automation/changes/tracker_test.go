package changes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"recruitment_backend/internal/events"
	"recruitment_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakePool struct{ tx *fakeTx }

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) { return p.tx, nil }

type recordingBus struct {
	mu        sync.Mutex
	published []events.EntityChanged
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e.(events.EntityChanged))
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func newTracker(tx *fakeTx) (*Tracker, *recordingBus) {
	bus := &recordingBus{}
	tr := NewTracker(&fakePool{tx: tx}, bus, logger.Discard())
	tr.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return tr, bus
}

func TestInTxPublishesAfterCommit(t *testing.T) {
	tx := &fakeTx{}
	tr, bus := newTracker(tx)
	company := uuid.New()
	candidate := uuid.New()

	err := tr.InTx(context.Background(), func(ctx context.Context, _ pgx.Tx, rec *Recorder) error {
		rec.Inserted(events.EntityCandidate, candidate, &company)
		if len(bus.published) != 0 {
			t.Fatal("nothing may be published before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if !tx.committed {
		t.Fatal("transaction was not committed")
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected one event, got %d", len(bus.published))
	}
	evt := bus.published[0]
	if evt.EntityType != events.EntityCandidate || evt.Operation != events.OperationCreate || evt.EntityID != candidate {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.CompanyID == nil || *evt.CompanyID != company {
		t.Fatalf("company id not carried: %+v", evt)
	}
	if !evt.OccurredAt().Equal(tr.now()) {
		t.Fatalf("event should be stamped with commit time, got %v", evt.OccurredAt())
	}
}

func TestInTxRollbackPublishesNothing(t *testing.T) {
	tx := &fakeTx{}
	tr, bus := newTracker(tx)
	boom := errors.New("constraint violation")

	err := tr.InTx(context.Background(), func(ctx context.Context, _ pgx.Tx, rec *Recorder) error {
		rec.Inserted(events.EntityProject, uuid.New(), nil)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if !tx.rolledBack {
		t.Fatal("transaction should be rolled back")
	}
	if len(bus.published) != 0 {
		t.Fatalf("rolled back writes must not publish, got %d", len(bus.published))
	}
}

func TestInTxCommitFailurePublishesNothing(t *testing.T) {
	tx := &fakeTx{commitErr: errors.New("serialization failure")}
	tr, bus := newTracker(tx)

	err := tr.InTx(context.Background(), func(ctx context.Context, _ pgx.Tx, rec *Recorder) error {
		rec.Updated(events.EntityAnalysis, uuid.New(), nil, "status")
		return nil
	})
	if err == nil {
		t.Fatal("expected commit error")
	}
	if len(bus.published) != 0 {
		t.Fatalf("failed commit must not publish, got %d", len(bus.published))
	}
}

func TestRecorderCollapsesChangesPerEntity(t *testing.T) {
	tx := &fakeTx{}
	tr, bus := newTracker(tx)
	created, updated, removed, transient := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	err := tr.InTx(context.Background(), func(ctx context.Context, _ pgx.Tx, rec *Recorder) error {
		rec.Inserted(events.EntityCandidate, created, nil)
		rec.Updated(events.EntityCandidate, created, nil, "status")

		rec.Updated(events.EntityAnalysis, updated, nil, "status")
		rec.Updated(events.EntityAnalysis, updated, nil, "score", "status")

		rec.Updated(events.EntityUser, removed, nil, "email")
		rec.Deleted(events.EntityUser, removed, nil)

		rec.Inserted(events.EntityProject, transient, nil)
		rec.Deleted(events.EntityProject, transient, nil)
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	if len(bus.published) != 3 {
		t.Fatalf("expected 3 events, got %+v", bus.published)
	}
	if e := bus.published[0]; e.EntityID != created || e.Operation != events.OperationCreate {
		t.Fatalf("insert+update should be a create, got %+v", e)
	}
	if e := bus.published[1]; e.Operation != events.OperationUpdate || len(e.ChangedFields) != 2 ||
		e.ChangedFields[0] != "status" || e.ChangedFields[1] != "score" {
		t.Fatalf("updates should merge changed fields, got %+v", e)
	}
	if e := bus.published[2]; e.EntityID != removed || e.Operation != events.OperationDelete {
		t.Fatalf("update+delete should be a delete, got %+v", e)
	}
}

func TestUpdatedWithoutFieldsIsUnknown(t *testing.T) {
	tx := &fakeTx{}
	tr, bus := newTracker(tx)
	id := uuid.New()

	_ = tr.InTx(context.Background(), func(ctx context.Context, _ pgx.Tx, rec *Recorder) error {
		rec.Updated(events.EntityCandidate, id, nil, "status")
		rec.Updated(events.EntityCandidate, id, nil)
		return nil
	})
	if len(bus.published) != 1 || bus.published[0].ChangedFields != nil {
		t.Fatalf("unknown changed fields should stay nil, got %+v", bus.published)
	}
}

func TestNotifyValidatesInput(t *testing.T) {
	tr, bus := newTracker(&fakeTx{})
	ctx := context.Background()

	if err := tr.Notify(ctx, "INVOICE", events.OperationCreate, uuid.New(), nil); err == nil {
		t.Fatal("expected unknown entity type error")
	}
	if err := tr.Notify(ctx, events.EntityCandidate, "UPSERT", uuid.New(), nil); err == nil {
		t.Fatal("expected unknown operation error")
	}
	if err := tr.Notify(ctx, events.EntityCandidate, events.OperationUpdate, uuid.Nil, nil); err == nil {
		t.Fatal("expected missing id error")
	}
	if err := tr.Notify(ctx, events.EntityCandidate, events.OperationUpdate, uuid.New(), nil); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(bus.published) != 1 || bus.published[0].ChangedFields != nil {
		t.Fatalf("expected one event with unknown fields, got %+v", bus.published)
	}
}
