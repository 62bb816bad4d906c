package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("%q: expected %s, got %s", in, want, got)
		}
	}
}

func TestSanitizeTelegramErr(t *testing.T) {
	token := "123456:SECRET"
	err := errors.New(`Post "https://api.telegram.org/bot123456:SECRET/getMe": dial tcp: timeout`)

	got := sanitizeTelegramErr(err, token)
	if strings.Contains(got, "SECRET") {
		t.Fatalf("token leaked: %s", got)
	}
	if !strings.Contains(got, "<redacted-token>") {
		t.Fatalf("expected redaction marker, got %s", got)
	}
}
