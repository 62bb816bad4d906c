package providers

import "context"

type GenerateRequest struct {
	Model          string
	Prompt         string
	ThinkingBudget int
}

// Response is the provider's decoded JSON body. Its shape is not fixed across
// API versions, so callers extract text from it defensively.
type Response map[string]any

type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (Response, error)
}
