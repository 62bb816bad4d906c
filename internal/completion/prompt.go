package completion

import "strings"

// BuildPrompt places both texts verbatim into one prompt. The user message is
// not escaped or delimited.
func BuildPrompt(systemPrompt, userMessage string) string {
	var b strings.Builder
	b.Grow(len(systemPrompt) + len(userMessage) + 48)
	b.WriteString("System instructions:\n")
	b.WriteString(systemPrompt)
	b.WriteString("\n\nUser message:\n")
	b.WriteString(userMessage)
	b.WriteString("\n")
	return b.String()
}
