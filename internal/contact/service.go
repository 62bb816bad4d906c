package contact

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"mindweave/internal/metrics"
	"mindweave/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.NotifyJob) (string, error)
}

// Deduplicator claims a fingerprint for a while. Forget releases a claim whose
// submission was not stored.
type Deduplicator interface {
	MarkFirst(ctx context.Context, fingerprint string) (bool, error)
	Forget(ctx context.Context, fingerprint string) error
}

// Deliverer sends notifications for a stored message synchronously.
type Deliverer interface {
	Deliver(ctx context.Context, id int64) error
}

type Config struct {
	Inbox *Inbox
	// Queue hands notifications to the worker. Without it Deliverer runs
	// inline.
	Queue     Enqueuer
	Deliverer Deliverer
	Dedupe    Deduplicator
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

type Service struct {
	inbox     *Inbox
	queue     Enqueuer
	deliverer Deliverer
	dedupe    Deduplicator
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Service{
		inbox:     cfg.Inbox,
		queue:     cfg.Queue,
		deliverer: cfg.Deliverer,
		dedupe:    cfg.Dedupe,
		logger:    cfg.Logger,
		metrics:   m,
	}
}

// Submit stores the message and schedules its notifications. Duplicate
// submissions return id 0 and no error. Notification failures do not fail
// the submission; unsent messages are picked up by the worker sweep.
func (s *Service) Submit(ctx context.Context, m Message) (int64, error) {
	if err := m.Normalize(); err != nil {
		s.metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		return 0, err
	}

	claimed := false
	if s.dedupe != nil {
		first, err := s.dedupe.MarkFirst(ctx, m.fingerprint())
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to dedupe contact submission")
		} else if !first {
			s.metrics.ContactSubmissions.WithLabelValues("duplicate").Inc()
			return 0, nil
		}
		claimed = err == nil
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	id, err := s.inbox.Save(ctx, m)
	if err != nil {
		s.metrics.ContactSubmissions.WithLabelValues("store_error").Inc()
		if claimed {
			// The sender will retry; that retry must not count as a duplicate.
			if ferr := s.dedupe.Forget(context.WithoutCancel(ctx), m.fingerprint()); ferr != nil {
				s.logger.Warn().Err(ferr).Msg("failed to release contact submission fingerprint")
			}
		}
		return 0, err
	}
	s.metrics.ContactSubmissions.WithLabelValues("stored").Inc()

	log := s.logger.With().Int64("message_id", id).Logger()
	switch {
	case s.queue != nil:
		if _, err := s.queue.Enqueue(ctx, queue.NotifyJob{MessageID: id}); err != nil {
			log.Error().Err(err).Msg("failed to enqueue contact notification")
		} else {
			s.metrics.EnqueuedJobs.Inc()
		}
	case s.deliverer != nil:
		if err := s.deliverer.Deliver(ctx, id); err != nil {
			log.Error().Err(err).Msg("failed to deliver contact notification")
		}
	}
	return id, nil
}

type submitResponse struct {
	OK    bool   `json:"ok"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServeHTTP implements POST /api/save-message.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var m Message
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{Error: "request body must be a JSON object"})
		return
	}

	id, err := s.Submit(r.Context(), m)
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrFieldTooLong):
		writeJSON(w, http.StatusBadRequest, submitResponse{Error: err.Error()})
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("failed to save contact message")
		writeJSON(w, http.StatusInternalServerError, submitResponse{Error: "Error saving message"})
	default:
		writeJSON(w, http.StatusOK, submitResponse{OK: true, ID: id})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
