package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// RateLimiter is a fixed hourly window counter per client, shared by every
// replica through redis.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, limit int64, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{redis: rdb, limit: limit, window: window}
}

func (r *RateLimiter) Allow(ctx context.Context, client string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error) {
	windowStart := now.UTC().Truncate(r.window)
	windowEnd := windowStart.Add(r.window)
	ttl := int64(windowEnd.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("mindweave:ratelimit:%s:%d", client, windowStart.Unix())
	res, err := incrWithTTLScript.Run(ctx, r.redis, []string{key}, ttl).Int64()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script: %w", err)
	}
	return res <= r.limit, res, windowEnd, nil
}

// SubmissionDeduplicator remembers submission fingerprints for ttl so a
// double-clicked form is stored once.
type SubmissionDeduplicator struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSubmissionDeduplicator(rdb *redis.Client, ttl time.Duration) *SubmissionDeduplicator {
	return &SubmissionDeduplicator{redis: rdb, ttl: ttl}
}

func (d *SubmissionDeduplicator) MarkFirst(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := d.redis.SetNX(ctx, submissionKey(fingerprint), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return ok, nil
}

// Forget drops a fingerprint so the same submission is accepted again.
func (d *SubmissionDeduplicator) Forget(ctx context.Context, fingerprint string) error {
	if err := d.redis.Del(ctx, submissionKey(fingerprint)).Err(); err != nil {
		return fmt.Errorf("dedupe del: %w", err)
	}
	return nil
}

func submissionKey(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return "mindweave:submission:" + hex.EncodeToString(sum[:])
}
