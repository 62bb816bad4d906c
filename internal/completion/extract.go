package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mindweave/internal/providers"
)

var (
	errNoText      = errors.New("response has no text")
	errNoCandidate = errors.New("response has no candidate content")
)

// Extractor turns a raw provider response into answer text. Extract must not
// have side effects.
type Extractor struct {
	Name    string
	Extract func(providers.Response) (string, error)
}

// DefaultExtractors is the fallback order applied to every response. The last
// strategy always succeeds.
var DefaultExtractors = []Extractor{
	{Name: "text", Extract: ExtractText},
	{Name: "candidate_content", Extract: ExtractCandidateContent},
	{Name: "string", Extract: ExtractString},
}

// Extract runs the strategies in order and returns the first result together
// with the name of the strategy that produced it.
func Extract(resp providers.Response, strategies []Extractor) (string, string) {
	for _, s := range strategies {
		text, err := safeExtract(s, resp)
		if err == nil {
			return text, s.Name
		}
	}
	text, _ := ExtractString(resp)
	return text, "string"
}

func safeExtract(s Extractor, resp providers.Response) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor %s panicked: %v", s.Name, r)
		}
	}()
	return s.Extract(resp)
}

// ExtractText reads the plain-text field: a top-level "text", otherwise the
// concatenated non-thought text parts of the first candidate.
func ExtractText(resp providers.Response) (string, error) {
	if v, ok := resp["text"].(string); ok && v != "" {
		return v, nil
	}

	content, ok := firstCandidateContent(resp)
	if !ok {
		return "", errNoText
	}
	c, ok := content.(map[string]any)
	if !ok {
		return "", errNoText
	}
	parts, ok := c["parts"].([]any)
	if !ok {
		return "", errNoText
	}

	var b strings.Builder
	for _, p := range parts {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if thought, _ := m["thought"].(bool); thought {
			continue
		}
		if txt, ok := m["text"].(string); ok {
			b.WriteString(txt)
		}
	}
	if b.Len() == 0 {
		return "", errNoText
	}
	return b.String(), nil
}

// ExtractCandidateContent returns the first candidate's content: strings as
// they are, anything else JSON encoded.
func ExtractCandidateContent(resp providers.Response) (string, error) {
	content, ok := firstCandidateContent(resp)
	if !ok || content == nil {
		return "", errNoCandidate
	}
	if s, ok := content.(string); ok {
		if s == "" {
			return "", errNoCandidate
		}
		return s, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encode candidate content: %w", err)
	}
	return string(b), nil
}

// ExtractString renders the whole response. The result is never empty.
func ExtractString(resp providers.Response) (string, error) {
	if resp == nil {
		return "{}", nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(resp)), nil
	}
	return string(b), nil
}

func firstCandidateContent(resp providers.Response) (any, bool) {
	candidates, ok := resp["candidates"].([]any)
	if !ok || len(candidates) == 0 {
		return nil, false
	}
	first, ok := candidates[0].(map[string]any)
	if !ok {
		return nil, false
	}
	content, ok := first["content"]
	return content, ok
}
