package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mindweave/internal/contact"
	"mindweave/internal/metrics"
	"mindweave/internal/queue"
	"mindweave/internal/storage"
)

type JobQueue interface {
	EnsureGroup(ctx context.Context) error
	Enqueue(ctx context.Context, job queue.NotifyJob) (string, error)
	Read(ctx context.Context, count int64) ([]queue.Message, error)
	Ack(ctx context.Context, messageID string) error
	Reschedule(ctx context.Context, messageID int64, hold time.Duration) (bool, error)
}

type Inbox interface {
	Load(ctx context.Context, id int64) (contact.Message, error)
	MarkNotified(ctx context.Context, id int64, at time.Time) error
	RecordAttempt(ctx context.Context, id int64) error
	PendingIDs(ctx context.Context, minAge time.Duration, maxAttempts int, limit uint64) ([]int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, m contact.Message) error
}

// Worker delivers contact notifications. Jobs come from the redis stream
// when one is configured; a periodic sweep picks up messages whose
// notification never went out. Every message gets at most maxAttempts
// deliveries across stream retries and sweeps.
type Worker struct {
	queue         JobQueue
	inbox         Inbox
	notifier      Notifier
	maxJobRetries int
	maxAttempts   int
	sweepInterval time.Duration
	sweepMinAge   time.Duration
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Queue         JobQueue
	Inbox         Inbox
	Notifier      Notifier
	MaxJobRetries int
	MaxAttempts   int
	SweepInterval time.Duration
	SweepMinAge   time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.SweepMinAge <= 0 {
		cfg.SweepMinAge = 10 * time.Minute
	}
	return &Worker{
		queue:         cfg.Queue,
		inbox:         cfg.Inbox,
		notifier:      cfg.Notifier,
		maxJobRetries: cfg.MaxJobRetries,
		maxAttempts:   cfg.MaxAttempts,
		sweepInterval: cfg.SweepInterval,
		sweepMinAge:   cfg.SweepMinAge,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

// Start blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	if w.queue != nil {
		if err := w.queue.EnsureGroup(ctx); err != nil {
			return err
		}
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				w.consumeLoop(ctx, slot)
			}(i)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.sweepLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

// Deliver notifies about one message and marks it notified. Already
// notified, deleted and exhausted messages are skipped.
func (w *Worker) Deliver(ctx context.Context, id int64) error {
	m, err := w.inbox.Load(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.Warn().Int64("message_id", id).Msg("contact message not found, skipping")
			return nil
		}
		return fmt.Errorf("load message: %w", err)
	}
	if m.Notified {
		return nil
	}
	if m.Attempts >= w.maxAttempts {
		w.logger.Warn().Int64("message_id", id).Int("attempts", m.Attempts).Msg("contact notification exhausted, skipping")
		return nil
	}

	if err := w.inbox.RecordAttempt(ctx, id); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if err := w.notifier.Notify(ctx, m); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := w.inbox.MarkNotified(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read queue")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, log, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, log zerolog.Logger, msg queue.Message) {
	err := w.Deliver(ctx, msg.Job.MessageID)
	if err == nil {
		w.metrics.ProcessedJobs.Inc()
		if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
		}
		return
	}

	w.metrics.FailedJobs.Inc()
	log.Error().Err(err).Str("job_id", msg.Job.JobID).Int("attempt", msg.Job.Attempts).Msg("job failed")

	if msg.Job.Attempts < w.maxJobRetries {
		msg.Job.Attempts++
		if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
			log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue failed job")
			return
		}
	} else {
		log.Warn().Int64("message_id", msg.Job.MessageID).Msg("giving up on job, sweep retries while attempts remain")
	}
	if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
		log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack failed message")
	}
}

func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("notification sweep failed")
			}
		}
	}
}

// Sweep re-schedules messages that stayed unnotified longer than the
// minimum age: through the queue when there is one, inline otherwise.
// Messages attempted within the minimum age and messages already queued by
// an earlier sweep are left alone.
func (w *Worker) Sweep(ctx context.Context) error {
	ids, err := w.inbox.PendingIDs(ctx, w.sweepMinAge, w.maxAttempts, 50)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if w.queue != nil {
			added, err := w.queue.Reschedule(ctx, id, w.sweepMinAge)
			if err != nil {
				return err
			}
			if added {
				w.metrics.EnqueuedJobs.Inc()
			}
			continue
		}
		if err := w.Deliver(ctx, id); err != nil {
			w.logger.Error().Err(err).Int64("message_id", id).Msg("sweep delivery failed")
		}
	}
	return nil
}
