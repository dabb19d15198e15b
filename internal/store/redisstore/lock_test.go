package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// These tests need a live server; set REDIS_ADDR to run them.
func testLocker(t *testing.T) *Locker {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb, err := NewClient(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLocker(rdb, 5*time.Second)
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	l := testLocker(t)
	key := uuid.NewString()

	unlock, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, key); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while held, got %v", err)
	}

	unlock()
	unlock()

	again, err := l.Lock(context.Background(), key)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	l := testLocker(t)
	key := uuid.NewString()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// simulate expiry and takeover by another process
	if err := l.rdb.Set(ctx, lockPrefix+key, "someone-else", time.Minute).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	unlock()

	v, err := l.rdb.Get(ctx, lockPrefix+key).Result()
	if err != nil || v != "someone-else" {
		t.Fatalf("foreign lock was removed: v=%q err=%v", v, err)
	}
	_ = l.rdb.Del(ctx, lockPrefix+key).Err()
}
