// Package distlock provides per-key mutual exclusion, either inside one
// process or across processes through Redis.
// This is part of the platform layer and contains no business logic.
package distlock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when a non-blocking lock is held by someone else.
var ErrLocked = errors.New("distlock: key is locked")

// ReleaseFunc releases a lock obtained from a Locker.
type ReleaseFunc func(ctx context.Context) error

// Locker serializes work per key.
type Locker interface {
	// Acquire obtains the lock for key. Implementations either wait or
	// return ErrLocked when the key is already held.
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// LocalLocker is a keyed mutex for a single process. Acquire waits until the
// key is free or ctx is done.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty keyed mutex.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

// Acquire blocks until key is free.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
		return nil
	}, nil
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Chain acquires every locker in order and releases them in reverse.
type Chain []Locker

// Acquire implements Locker.
func (c Chain) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	releases := make([]ReleaseFunc, 0, len(c))
	releaseAll := func(ctx context.Context) error {
		var errs []error
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, locker := range c {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			_ = releaseAll(context.WithoutCancel(ctx))
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
