package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/hlog"
)

const maxBodyBytes = 1 << 20

// Limiter is a per-client request budget. A limiter error lets the request
// through.
type Limiter interface {
	Allow(ctx context.Context, client string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error)
}

// ServeHTTP implements POST /chat. The status is always 200; callers branch
// on the ok field.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			hlog.FromRequest(r).Error().Interface("panic", rec).Msg("chat handler panicked")
			writeJSON(w, failure("internal error"))
		}
	}()

	if s.limiter != nil {
		client := ClientKey(r)
		allowed, used, resetAt, err := s.limiter.Allow(r.Context(), client, time.Now())
		switch {
		case err != nil:
			hlog.FromRequest(r).Warn().Err(err).Str("client", client).Msg("rate limiter unavailable")
		case !allowed:
			s.metrics.ChatRequests.WithLabelValues("rate_limited").Inc()
			hlog.FromRequest(r).Warn().
				Str("client", client).
				Int64("used", used).
				Time("reset_at", resetAt).
				Msg("chat rate limit exceeded")
			writeJSON(w, failure(msgRateLimited))
			return
		}
	}

	req, err := decodeRequest(r)
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues("invalid").Inc()
		hlog.FromRequest(r).Debug().Err(err).Msg("invalid chat body")
		writeJSON(w, failure(ErrInvalidBody.Error()))
		return
	}

	writeJSON(w, s.Handle(r.Context(), req))
}

func decodeRequest(r *http.Request) (Request, error) {
	var req Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty body is treated like a missing query.
			return Request{}, nil
		}
		return Request{}, err
	}
	return req, nil
}

// ClientKey identifies the caller for rate limiting: the first
// X-Forwarded-For hop when present, otherwise the remote host.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
