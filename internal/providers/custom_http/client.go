package custom_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"mindweave/internal/providers"
)

// Config describes a self-hosted or proxied completion endpoint. BodyTemplate
// is a text/template rendered with Model, Prompt, ThinkingBudget and APIKey.
type Config struct {
	Kind         string
	URL          string
	APIKey       string
	Headers      map[string]string
	BodyTemplate string
	Method       string
	HTTPClient   *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Kind == "" {
		cfg.Kind = "custom_http"
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Name() string { return c.cfg.Kind }

func (c *Client) Generate(ctx context.Context, req providers.GenerateRequest) (providers.Response, error) {
	body, err := c.renderBody(req)
	if err != nil {
		return nil, err
	}
	return c.callOnce(ctx, body)
}

func (c *Client) renderBody(req providers.GenerateRequest) ([]byte, error) {
	if strings.TrimSpace(c.cfg.BodyTemplate) == "" {
		payload := map[string]any{
			"model":           req.Model,
			"prompt":          req.Prompt,
			"thinking_budget": req.ThinkingBudget,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal custom payload: %w", err)
		}
		return b, nil
	}

	tpl, err := template.New("custom_http_body").
		Option("missingkey=zero").
		Funcs(template.FuncMap{"json": jsonString}).
		Parse(c.cfg.BodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, map[string]any{
		"Model":          req.Model,
		"Prompt":         req.Prompt,
		"ThinkingBudget": req.ThinkingBudget,
		"APIKey":         c.cfg.APIKey,
	}); err != nil {
		return nil, fmt.Errorf("execute body template: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) callOnce(ctx context.Context, body []byte) (providers.Response, error) {
	if strings.TrimSpace(c.cfg.URL) == "" {
		return nil, fmt.Errorf("custom http url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, c.cfg.Method, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build custom request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" && len(c.cfg.Headers) == 0 {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("custom request failed: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read custom response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("custom provider status %d", resp.StatusCode)
	}
	return decodeResponse(b)
}

// decodeResponse accepts a JSON object, or plain text which is exposed under
// the "text" key.
func decodeResponse(body []byte) (providers.Response, error) {
	var out providers.Response
	if err := json.Unmarshal(body, &out); err == nil && out != nil {
		return out, nil
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("custom response is empty")
	}
	return providers.Response{"text": trimmed}, nil
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
