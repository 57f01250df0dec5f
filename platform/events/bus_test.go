package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recruitment_backend/platform/logger"
)

type pingEvent struct {
	BaseEvent
	n int
}

func (pingEvent) EventName() string { return "test.ping" }

func TestPublishDeliversAsynchronously(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard(), BusOptions{Workers: 2, QueueSize: 8})

	var wg sync.WaitGroup
	var total atomic.Int64
	wg.Add(3)
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		defer wg.Done()
		total.Add(int64(e.(pingEvent).n))
		return nil
	}))

	for i := 1; i <= 3; i++ {
		bus.Publish(context.Background(), pingEvent{BaseEvent: NewBaseEvent(), n: i})
	}
	wg.Wait()

	if total.Load() != 6 {
		t.Fatalf("expected sum 6, got %d", total.Load())
	}
	if err := bus.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard(), BusOptions{Workers: 1, QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var handled atomic.Int64
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		handled.Add(1)
		return nil
	}))

	bus.Publish(context.Background(), pingEvent{n: 1})
	<-started // worker is busy with the first event

	done := make(chan struct{})
	go func() {
		bus.Publish(context.Background(), pingEvent{n: 2}) // fills the queue
		bus.Publish(context.Background(), pingEvent{n: 3}) // dropped
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}

	close(release)
	if err := bus.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if handled.Load() != 2 {
		t.Fatalf("expected 2 handled events, got %d", handled.Load())
	}
}

func TestPublishDetachesCancellation(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard(), BusOptions{Workers: 1, QueueSize: 4})

	got := make(chan error, 1)
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		got <- ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, pingEvent{})

	if err := <-got; err != nil {
		t.Fatalf("handler saw cancelled context: %v", err)
	}
	_ = bus.Close(context.Background())
}

func TestPublishSyncJoinsErrorsAndRecoversPanics(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard(), BusOptions{})
	defer bus.Close(context.Background())

	boom := errors.New("boom")
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error { return boom }))
	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error { panic("bad handler") }))

	err := bus.PublishSync(context.Background(), pingEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard(), BusOptions{})
	_ = bus.Close(context.Background())

	bus.Subscribe("test.ping", HandlerFunc(func(ctx context.Context, e Event) error {
		t.Fatal("handler must not run after close")
		return nil
	}))
	bus.Publish(context.Background(), pingEvent{})
}
