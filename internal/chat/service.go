package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mindweave/internal/metrics"
)

const (
	msgEmptyQuery  = "Please provide 'query' in the request body."
	msgRateLimited = "Rate limit exceeded. Please try again later."
)

var (
	ErrEmptyQuery  = errors.New(msgEmptyQuery)
	ErrInvalidBody = errors.New("request body must be a JSON object with a 'query' field")
)

// Completer is the completion gateway as seen by the handler.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string, thinkingBudget int) (string, error)
	Source() string
}

type Config struct {
	Completer    Completer
	SystemPrompt string
	// DebugTraces puts error traces into failure payloads. Traces are always
	// logged.
	DebugTraces bool
	Limiter     Limiter
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

type Service struct {
	completer    Completer
	systemPrompt string
	debugTraces  bool
	limiter      Limiter
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Service{
		completer:    cfg.Completer,
		systemPrompt: cfg.SystemPrompt,
		debugTraces:  cfg.DebugTraces,
		limiter:      cfg.Limiter,
		logger:       cfg.Logger,
		metrics:      m,
	}
}

// Handle answers one query with at most one completion call. It never
// returns an error: failures are reported in the response.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.metrics.ChatRequests.WithLabelValues("invalid").Inc()
		return failure(ErrEmptyQuery.Error())
	}

	answer, err := s.completer.Complete(ctx, s.systemPrompt, query, int(req.ThinkingBudget))
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues("upstream_error").Inc()
		trace := traceOf(err)
		s.logger.Error().
			Err(err).
			Str("source", s.completer.Source()).
			Str("trace", trace).
			Msg("completion failed")

		resp := failure(err.Error())
		if s.debugTraces {
			resp.Traceback = trace
		}
		return resp
	}

	s.metrics.ChatRequests.WithLabelValues("ok").Inc()
	return success(s.completer.Source(), answer)
}

func traceOf(err error) string {
	var tracer interface{ Trace() string }
	if errors.As(err, &tracer) {
		return tracer.Trace()
	}
	return fmt.Sprintf("%+v", err)
}
