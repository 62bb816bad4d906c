package completion

import (
	"fmt"

	"github.com/pkg/errors"
)

// UpstreamError wraps a failed provider call. The cause carries the stack of
// the call site.
type UpstreamError struct {
	Source string
	cause  error
}

func newUpstreamError(source string, err error) *UpstreamError {
	return &UpstreamError{Source: source, cause: errors.WithStack(err)}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API call failed: %v", sourceLabel(e.Source), errors.Cause(e.cause))
}

func (e *UpstreamError) Unwrap() error { return e.cause }

// Trace renders the error together with its stack.
func (e *UpstreamError) Trace() string {
	return fmt.Sprintf("%s\n%+v", e.Error(), e.cause)
}

func sourceLabel(source string) string {
	switch source {
	case "gemini":
		return "Gemini"
	case "":
		return "Completion"
	default:
		return source
	}
}
