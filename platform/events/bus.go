package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"recruitment_backend/platform/logger"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// BusOptions sizes the asynchronous dispatch pool.
type BusOptions struct {
	Workers   int
	QueueSize int
}

type job struct {
	ctx     context.Context
	handler Handler
	event   Event
}

// InMemoryBus dispatches events to subscribers inside the process. Publish
// enqueues onto a bounded queue drained by a fixed worker pool; when the queue
// is full the delivery is dropped and logged so the publisher never waits.
type InMemoryBus struct {
	log *logger.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	queue chan job
	wg    sync.WaitGroup
}

// NewInMemoryBus creates a bus and starts its workers.
func NewInMemoryBus(log *logger.Logger, opts BusOptions) *InMemoryBus {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	b := &InMemoryBus{
		log:      log,
		handlers: make(map[string][]Handler),
		queue:    make(chan job, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish enqueues the event for every subscriber. The request context is
// detached from cancellation so handlers outlive the originating request.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.log.Warn("event bus closed, dropping event", slog.String("event", event.EventName()))
		return
	}

	detached := context.WithoutCancel(ctx)
	for _, h := range b.handlers[event.EventName()] {
		select {
		case b.queue <- job{ctx: detached, handler: h, event: event}:
		default:
			b.log.Warn("event queue full, dropping event",
				slog.String("event", event.EventName()),
				slog.Int("queue_capacity", cap(b.queue)),
			)
		}
	}
}

// PublishSync runs every subscriber inline and joins their errors.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := b.run(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting events and waits for queued work to drain or for
// ctx to expire.
func (b *InMemoryBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryBus) worker() {
	defer b.wg.Done()
	for j := range b.queue {
		if err := b.run(j.ctx, j.handler, j.event); err != nil {
			b.log.WithContext(j.ctx).Error("event handler failed",
				slog.String("event", j.event.EventName()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (b *InMemoryBus) run(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for %s: %v", event.EventName(), r)
		}
	}()
	return h.Handle(ctx, event)
}
