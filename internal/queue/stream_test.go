package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStreamQueueRoundTrip(t *testing.T) {
	mr, rdb := newRedis(t)
	q := NewStreamQueue(rdb, "mindweave:notify", "notifiers", "worker-1", 10*time.Millisecond)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group twice: %v", err)
	}

	if _, err := q.Enqueue(ctx, NotifyJob{MessageID: 42}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs, err := q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	job := msgs[0].Job
	if job.MessageID != 42 || job.JobID == "" || job.EnqueuedAt.IsZero() {
		t.Fatalf("unexpected job %+v", job)
	}

	if err := q.Ack(ctx, msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	entries, err := mr.Stream("mindweave:notify")
	if err != nil {
		t.Fatalf("inspect stream: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected acked entry to be deleted, %d left", len(entries))
	}
}

func TestStreamQueueDropsMalformedEntries(t *testing.T) {
	mr, rdb := newRedis(t)
	q := NewStreamQueue(rdb, "mindweave:notify", "notifiers", "worker-1", 10*time.Millisecond)
	ctx := context.Background()

	if err := q.EnsureGroup(ctx); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	if err := rdb.XAdd(ctx, &redis.XAddArgs{Stream: "mindweave:notify", Values: map[string]any{"message_id": "abc"}}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	if _, err := q.Enqueue(ctx, NotifyJob{MessageID: 7, Attempts: 2}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	msgs, err := q.Read(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Job.MessageID != 7 || msgs[0].Job.Attempts != 2 {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	entries, err := mr.Stream("mindweave:notify")
	if err != nil {
		t.Fatalf("inspect stream: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected malformed entry to be dropped, %d entries left", len(entries))
	}
}

func TestStreamQueueRescheduleHolds(t *testing.T) {
	mr, rdb := newRedis(t)
	q := NewStreamQueue(rdb, "mindweave:notify", "notifiers", "worker-1", 10*time.Millisecond)
	ctx := context.Background()

	added, err := q.Reschedule(ctx, 9, 10*time.Minute)
	if err != nil || !added {
		t.Fatalf("expected first reschedule, got added=%v err=%v", added, err)
	}
	added, err = q.Reschedule(ctx, 9, 10*time.Minute)
	if err != nil || added {
		t.Fatalf("expected held reschedule to be skipped, got added=%v err=%v", added, err)
	}

	mr.FastForward(11 * time.Minute)
	added, err = q.Reschedule(ctx, 9, 10*time.Minute)
	if err != nil || !added {
		t.Fatalf("expected reschedule after hold, got added=%v err=%v", added, err)
	}

	entries, err := mr.Stream("mindweave:notify")
	if err != nil {
		t.Fatalf("inspect stream: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(entries))
	}
}
