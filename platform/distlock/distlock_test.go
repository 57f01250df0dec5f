package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "candidate:1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(waitCtx, "candidate:1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second acquire to wait until deadline, got %v", err)
	}

	other, err := l.Acquire(ctx, "candidate:2")
	if err != nil {
		t.Fatalf("different key must not block: %v", err)
	}
	_ = other(ctx)

	_ = release(ctx)
	again, err := l.Acquire(ctx, "candidate:1")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again(ctx)

	if len(l.slots) != 0 {
		t.Fatalf("expected slots to be cleaned up, got %d", len(l.slots))
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockerRejectsHeldKey(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "candidate:1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "candidate:1"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("lock:candidate:1") {
		t.Fatal("lock key should be deleted on release")
	}
}

func TestRedisLockerDoesNotReleaseForeignOwner(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate expiry followed by another process taking the lock.
	mr.Del("lock:k")
	if err := mr.Set("lock:k", "someone-else"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := mr.Get("lock:k")
	if got != "someone-else" {
		t.Fatalf("foreign lock was released, value now %q", got)
	}
}

func TestChainReleasesOnPartialFailure(t *testing.T) {
	_, client := newRedis(t)
	local := NewLocalLocker()
	remote := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	holder, err := remote.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer holder(ctx)

	if _, err := (Chain{local, remote}).Acquire(ctx, "k"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked from chain, got %v", err)
	}

	// The local half must have been released.
	release, err := local.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("local lock leaked: %v", err)
	}
	_ = release(ctx)
}
