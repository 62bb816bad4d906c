package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Request is the /chat body. Unknown fields, including any attempt to pass a
// system prompt, are ignored.
type Request struct {
	Query          string `json:"query"`
	ThinkingBudget Budget `json:"thinking_budget"`
}

// Budget is the thinking budget coerced to an integer. Absent, null, false and
// "" decode to zero; fractional numbers are truncated.
type Budget int

func (b *Budget) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false", `""`:
		*b = 0
		return nil
	case "true":
		*b = 1
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("thinking_budget: %w", err)
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("thinking_budget must be an integer, got %s", string(data))
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("thinking_budget out of range: %s", string(data))
	}
	*b = Budget(int(f))
	return nil
}

// Response is a tagged outcome: exactly one of the success or failure
// variants is rendered on the wire.
type Response struct {
	OK        bool
	Source    string
	Answer    string
	Error     string
	Traceback string
}

type successPayload struct {
	OK     bool   `json:"ok"`
	Source string `json:"source"`
	Answer string `json:"answer"`
}

type failurePayload struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Traceback string `json:"traceback,omitempty"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.OK {
		return json.Marshal(successPayload{OK: true, Source: r.Source, Answer: r.Answer})
	}
	return json.Marshal(failurePayload{OK: false, Error: r.Error, Traceback: r.Traceback})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		OK        bool   `json:"ok"`
		Source    string `json:"source"`
		Answer    string `json:"answer"`
		Error     string `json:"error"`
		Traceback string `json:"traceback"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Response(raw)
	return nil
}

func success(source, answer string) Response {
	return Response{OK: true, Source: source, Answer: answer}
}

func failure(msg string) Response {
	return Response{OK: false, Error: msg}
}
