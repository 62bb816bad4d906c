package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotifyJob asks a worker to deliver notifications for one stored contact
// message.
type NotifyJob struct {
	JobID      string
	MessageID  int64
	EnqueuedAt time.Time
	Attempts   int
}

var errMalformedJob = errors.New("malformed notify job")

// values flattens the job into stream entry fields.
func (j NotifyJob) values() map[string]any {
	return map[string]any{
		"job_id":      j.JobID,
		"message_id":  strconv.FormatInt(j.MessageID, 10),
		"enqueued_at": j.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		"attempts":    strconv.Itoa(j.Attempts),
	}
}

func parseNotifyJob(values map[string]any) (NotifyJob, error) {
	field := func(name string) string {
		s, _ := values[name].(string)
		return s
	}

	messageID, err := strconv.ParseInt(field("message_id"), 10, 64)
	if err != nil || messageID <= 0 {
		return NotifyJob{}, fmt.Errorf("%w: message_id %q", errMalformedJob, field("message_id"))
	}
	job := NotifyJob{JobID: field("job_id"), MessageID: messageID}
	if raw := field("attempts"); raw != "" {
		if job.Attempts, err = strconv.Atoi(raw); err != nil {
			return NotifyJob{}, fmt.Errorf("%w: attempts %q", errMalformedJob, raw)
		}
	}
	if raw := field("enqueued_at"); raw != "" {
		if job.EnqueuedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return NotifyJob{}, fmt.Errorf("%w: enqueued_at %q", errMalformedJob, raw)
		}
	}
	return job, nil
}

// StreamQueue carries NotifyJobs over a redis stream consumed by one group.
type StreamQueue struct {
	redis    *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

type Message struct {
	ID  string
	Job NotifyJob
}

func NewStreamQueue(rdb *redis.Client, stream, group, consumer string, block time.Duration) *StreamQueue {
	return &StreamQueue{
		redis:    rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
	}
}

// EnsureGroup creates the consumer group at the start of the stream, so jobs
// added before the first worker came up are still delivered.
func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	if q == nil {
		return fmt.Errorf("queue is nil")
	}
	err := q.redis.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create stream group: %w", err)
	}
	return nil
}

func (q *StreamQueue) Enqueue(ctx context.Context, job NotifyJob) (string, error) {
	if strings.TrimSpace(job.JobID) == "" {
		job.JobID = newJobID()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	id, err := q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: job.values(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// Reschedule enqueues a job for a message unless one was already rescheduled
// within hold. It reports whether a job was added.
func (q *StreamQueue) Reschedule(ctx context.Context, messageID int64, hold time.Duration) (bool, error) {
	key := q.stream + ":scheduled:" + strconv.FormatInt(messageID, 10)
	ok, err := q.redis.SetNX(ctx, key, "1", hold).Result()
	if err != nil {
		return false, fmt.Errorf("reschedule setnx: %w", err)
	}
	if !ok {
		return false, nil
	}
	if _, err := q.Enqueue(ctx, NotifyJob{MessageID: messageID}); err != nil {
		_ = q.redis.Del(context.WithoutCancel(ctx), key).Err()
		return false, err
	}
	return true, nil
}

// Read returns up to count new jobs for this consumer. Entries that do not
// decode are acked and dropped.
func (q *StreamQueue) Read(ctx context.Context, count int64) ([]Message, error) {
	res, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    q.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var out []Message
	for _, s := range res {
		for _, m := range s.Messages {
			job, err := parseNotifyJob(m.Values)
			if err != nil {
				if ackErr := q.Ack(ctx, m.ID); ackErr != nil {
					return out, fmt.Errorf("drop %s: %w", m.ID, ackErr)
				}
				continue
			}
			out = append(out, Message{ID: m.ID, Job: job})
		}
	}
	return out, nil
}

func (q *StreamQueue) Ack(ctx context.Context, messageID string) error {
	if err := q.redis.XAck(ctx, q.stream, q.group, messageID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.redis.XDel(ctx, q.stream, messageID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func newJobID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("job-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
