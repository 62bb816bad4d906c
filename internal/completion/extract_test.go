package completion

import (
	"encoding/json"
	"strings"
	"testing"

	"mindweave/internal/providers"
)

func decode(t *testing.T, raw string) providers.Response {
	t.Helper()
	var r providers.Response
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return r
}

func TestExtractPlainTextField(t *testing.T) {
	text, strategy := Extract(decode(t, `{"text":"Hello"}`), DefaultExtractors)
	if text != "Hello" || strategy != "text" {
		t.Fatalf("expected Hello via text, got %q via %s", text, strategy)
	}
}

func TestExtractCandidateParts(t *testing.T) {
	resp := decode(t, `{"candidates":[{"content":{"role":"model","parts":[
		{"text":"thinking...","thought":true},
		{"text":"Hel"},{"text":"lo"}]}}]}`)
	text, strategy := Extract(resp, DefaultExtractors)
	if text != "Hello" || strategy != "text" {
		t.Fatalf("expected Hello via text, got %q via %s", text, strategy)
	}
}

func TestExtractCandidateContentString(t *testing.T) {
	text, strategy := Extract(decode(t, `{"candidates":[{"content":"World"}]}`), DefaultExtractors)
	if text != "World" || strategy != "candidate_content" {
		t.Fatalf("expected World via candidate_content, got %q via %s", text, strategy)
	}
}

func TestExtractCandidateContentObjectWithoutText(t *testing.T) {
	text, strategy := Extract(decode(t, `{"candidates":[{"content":{"role":"model","parts":[]}}]}`), DefaultExtractors)
	if strategy != "candidate_content" {
		t.Fatalf("expected candidate_content strategy, got %s", strategy)
	}
	if !strings.Contains(text, `"role":"model"`) {
		t.Fatalf("expected encoded content, got %q", text)
	}
}

func TestExtractFallsBackToString(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"candidates":[]}`,
		`{"promptFeedback":{"blockReason":"SAFETY"}}`,
		`{"text":"","candidates":[{"finishReason":"SAFETY"}]}`,
	} {
		text, strategy := Extract(decode(t, raw), DefaultExtractors)
		if strategy != "string" {
			t.Fatalf("%s: expected string strategy, got %s", raw, strategy)
		}
		if strings.TrimSpace(text) == "" {
			t.Fatalf("%s: expected non-empty rendering", raw)
		}
	}
}

func TestExtractNilResponse(t *testing.T) {
	text, _ := Extract(nil, DefaultExtractors)
	if text == "" {
		t.Fatalf("expected non-empty rendering of nil response")
	}
}

func TestExtractSurvivesPanickingStrategy(t *testing.T) {
	strategies := []Extractor{
		{Name: "boom", Extract: func(providers.Response) (string, error) { panic("bad shape") }},
		{Name: "text", Extract: ExtractText},
	}
	text, strategy := Extract(providers.Response{"text": "ok"}, strategies)
	if text != "ok" || strategy != "text" {
		t.Fatalf("expected ok via text, got %q via %s", text, strategy)
	}
}

func TestExtractTextRejectsWrongShapes(t *testing.T) {
	for _, resp := range []providers.Response{
		{"text": 42},
		{"candidates": "nope"},
		{"candidates": []any{"nope"}},
		{"candidates": []any{map[string]any{"content": map[string]any{"parts": "nope"}}}},
	} {
		if _, err := ExtractText(resp); err == nil {
			t.Fatalf("expected error for %#v", resp)
		}
	}
}
