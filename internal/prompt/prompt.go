// Package prompt owns the system prompt the chat endpoint sends with every
// query. It is read once at startup and never changes afterwards.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

//go:embed system_prompt.txt
var defaultSystemPrompt string

var ErrEmptyPrompt = errors.New("system prompt is empty")

// Default returns the built-in portfolio assistant prompt.
func Default() string {
	return strings.TrimSpace(defaultSystemPrompt)
}

// Load returns the prompt stored at path, or the built-in prompt when path is
// empty.
func Load(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	p := strings.TrimSpace(string(b))
	if p == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyPrompt)
	}
	return p, nil
}
