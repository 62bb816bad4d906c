package completion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mindweave/internal/metrics"
	"mindweave/internal/providers"
	"mindweave/internal/providers/gemini"
)

type Config struct {
	Provider   providers.Provider
	Model      string
	Extractors []Extractor
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Gateway turns a system prompt and a user message into one provider call.
// It holds no per-request state and is safe for concurrent use.
type Gateway struct {
	provider   providers.Provider
	model      string
	extractors []Extractor
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func New(cfg Config) *Gateway {
	if cfg.Model == "" {
		cfg.Model = gemini.DefaultModel
	}
	if len(cfg.Extractors) == 0 {
		cfg.Extractors = DefaultExtractors
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Gateway{
		provider:   cfg.Provider,
		model:      cfg.Model,
		extractors: cfg.Extractors,
		logger:     cfg.Logger,
		metrics:    m,
	}
}

func (g *Gateway) Source() string { return g.provider.Name() }

// Complete sends exactly one request to the provider. A failed call is not
// retried and comes back as *UpstreamError.
func (g *Gateway) Complete(ctx context.Context, systemPrompt, userMessage string, thinkingBudget int) (string, error) {
	source := g.provider.Name()
	started := time.Now()
	resp, err := g.provider.Generate(ctx, providers.GenerateRequest{
		Model:          g.model,
		Prompt:         BuildPrompt(systemPrompt, userMessage),
		ThinkingBudget: thinkingBudget,
	})
	g.metrics.UpstreamLatency.WithLabelValues(source).Observe(time.Since(started).Seconds())
	if err != nil {
		return "", newUpstreamError(source, err)
	}

	text, strategy := Extract(resp, g.extractors)
	g.metrics.Extractions.WithLabelValues(strategy).Inc()
	g.logger.Debug().
		Str("source", source).
		Str("model", g.model).
		Str("strategy", strategy).
		Dur("latency", time.Since(started)).
		Msg("completion extracted")
	return text, nil
}
