package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests       *prometheus.CounterVec
	UpstreamLatency    *prometheus.HistogramVec
	Extractions        *prometheus.CounterVec
	ContactSubmissions *prometheus.CounterVec
	EnqueuedJobs       prometheus.Counter
	ProcessedJobs      prometheus.Counter
	FailedJobs         prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mindweave",
				Name:      "chat_requests_total",
				Help:      "Chat requests by outcome (ok, invalid, upstream_error, rate_limited)",
			}, []string{"outcome"}),
			UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "mindweave",
				Name:      "upstream_request_seconds",
				Help:      "Latency of completion API calls",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			}, []string{"source"}),
			Extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mindweave",
				Name:      "answer_extractions_total",
				Help:      "Answers extracted per response strategy",
			}, []string{"strategy"}),
			ContactSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "mindweave",
				Name:      "contact_submissions_total",
				Help:      "Contact form submissions by outcome",
			}, []string{"outcome"}),
			EnqueuedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mindweave",
				Name:      "notify_enqueued_total",
				Help:      "Total notification jobs enqueued to redis stream",
			}),
			ProcessedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mindweave",
				Name:      "notify_processed_total",
				Help:      "Total notification jobs successfully processed",
			}),
			FailedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "mindweave",
				Name:      "notify_failed_total",
				Help:      "Total notification jobs failed during processing",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.UpstreamLatency,
			global.Extractions,
			global.ContactSubmissions,
			global.EnqueuedJobs,
			global.ProcessedJobs,
			global.FailedJobs,
		)
	})
	return global
}
