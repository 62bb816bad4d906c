package registry

import (
	"fmt"
	"net/http"
	"strings"

	"mindweave/internal/providers"
	"mindweave/internal/providers/custom_http"
	"mindweave/internal/providers/gemini"
)

type BuildOptions struct {
	Kind       string
	BaseURL    string
	APIKey     string
	Headers    map[string]string
	Config     map[string]any
	HTTPClient *http.Client
}

func Build(opts BuildOptions) (providers.Provider, error) {
	if opts.Config == nil {
		opts.Config = map[string]any{}
	}
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", "gemini", "google":
		return gemini.New(gemini.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	case "custom_http", "custom-http":
		bodyTemplate := ""
		if v, ok := opts.Config["body_template"].(string); ok {
			bodyTemplate = v
		}
		method := http.MethodPost
		if v, ok := opts.Config["method"].(string); ok && v != "" {
			method = v
		}
		source := "custom_http"
		if v, ok := opts.Config["source"].(string); ok && v != "" {
			source = v
		}
		return custom_http.New(custom_http.Config{
			Kind:         source,
			URL:          opts.BaseURL,
			APIKey:       opts.APIKey,
			Headers:      opts.Headers,
			BodyTemplate: bodyTemplate,
			Method:       method,
			HTTPClient:   opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
