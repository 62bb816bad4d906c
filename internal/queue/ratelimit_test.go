package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRateLimiterAllow(t *testing.T) {
	_, rdb := newRedis(t)

	rl := NewRateLimiter(rdb, 2, time.Hour)
	now := time.Date(2026, 2, 13, 10, 15, 0, 0, time.UTC)

	allowed, used, resetAt, err := rl.Allow(context.Background(), "203.0.113.7", now)
	if err != nil {
		t.Fatalf("allow#1: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected first call allowed with used=1, got allowed=%v used=%d", allowed, used)
	}
	if !resetAt.Equal(time.Date(2026, 2, 13, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected reset time %s", resetAt)
	}

	allowed, used, _, err = rl.Allow(context.Background(), "203.0.113.7", now)
	if err != nil {
		t.Fatalf("allow#2: %v", err)
	}
	if !allowed || used != 2 {
		t.Fatalf("expected second call allowed with used=2, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = rl.Allow(context.Background(), "203.0.113.7", now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}

	allowed, _, _, err = rl.Allow(context.Background(), "198.51.100.2", now)
	if err != nil {
		t.Fatalf("allow other client: %v", err)
	}
	if !allowed {
		t.Fatalf("expected other client to have its own budget")
	}

	allowed, used, _, err = rl.Allow(context.Background(), "203.0.113.7", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("allow next window: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected fresh window, got allowed=%v used=%d", allowed, used)
	}
}

func TestRateLimiterRedisDown(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	rl := NewRateLimiter(rdb, 2, time.Hour)
	if _, _, _, err := rl.Allow(context.Background(), "x", time.Now()); err == nil {
		t.Fatalf("expected error with redis down")
	}
}

func TestSubmissionDeduplicator(t *testing.T) {
	mr, rdb := newRedis(t)
	d := NewSubmissionDeduplicator(rdb, 10*time.Minute)

	first, err := d.MarkFirst(context.Background(), "ada@example.com|hello")
	if err != nil || !first {
		t.Fatalf("expected first mark, got first=%v err=%v", first, err)
	}
	first, err = d.MarkFirst(context.Background(), "ada@example.com|hello")
	if err != nil || first {
		t.Fatalf("expected duplicate, got first=%v err=%v", first, err)
	}

	mr.FastForward(11 * time.Minute)
	first, err = d.MarkFirst(context.Background(), "ada@example.com|hello")
	if err != nil || !first {
		t.Fatalf("expected mark after ttl, got first=%v err=%v", first, err)
	}
}

func TestSubmissionDeduplicatorForget(t *testing.T) {
	_, rdb := newRedis(t)
	d := NewSubmissionDeduplicator(rdb, 10*time.Minute)
	ctx := context.Background()

	if first, err := d.MarkFirst(ctx, "fp"); err != nil || !first {
		t.Fatalf("expected first mark, got first=%v err=%v", first, err)
	}
	if err := d.Forget(ctx, "fp"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if first, err := d.MarkFirst(ctx, "fp"); err != nil || !first {
		t.Fatalf("expected fingerprint to be claimable again, got first=%v err=%v", first, err)
	}
}
