package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("k1", map[string][]byte{"k1": mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	raw, err := s.Seal("email", "ada@example.com")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(raw, "ada@example.com") {
		t.Fatalf("sealed value leaks plaintext: %s", raw)
	}

	out, err := s.Open("email", raw)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if out != "ada@example.com" {
		t.Fatalf("expected original string, got %q", out)
	}
}

func TestOpenRejectsOtherField(t *testing.T) {
	s, err := NewSealer("k1", map[string][]byte{"k1": mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	raw, err := s.Seal("email", "ada@example.com")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := s.Open("description", raw); err == nil {
		t.Fatalf("expected field binding to reject swapped value")
	}
}

func TestRotationOpenOldSealNew(t *testing.T) {
	oldKey := mustKey(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	newKey := mustKey(t, "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=")

	oldSealer, err := NewSealer("old", map[string][]byte{"old": oldKey})
	if err != nil {
		t.Fatalf("old sealer: %v", err)
	}
	legacy, err := oldSealer.Seal("email", "legacy@example.com")
	if err != nil {
		t.Fatalf("seal old: %v", err)
	}

	rotated, err := NewSealer("new", map[string][]byte{"old": oldKey, "new": newKey})
	if err != nil {
		t.Fatalf("rotated sealer: %v", err)
	}
	if !rotated.Stale(legacy) {
		t.Fatalf("value sealed under the old key must be stale")
	}
	resealed, err := rotated.Reseal("email", legacy)
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	if !strings.Contains(resealed, `"kid":"new"`) {
		t.Fatalf("expected new key id in %s", resealed)
	}
	if rotated.Stale(resealed) {
		t.Fatalf("resealed value must not be stale")
	}
	plain, err := rotated.Open("email", resealed)
	if err != nil || plain != "legacy@example.com" {
		t.Fatalf("open resealed: %q %v", plain, err)
	}

	if _, err := oldSealer.Open("email", resealed); err == nil {
		t.Fatalf("old sealer must not know the new key")
	}
}

func TestNewSealerValidation(t *testing.T) {
	if _, err := NewSealer("", map[string][]byte{"a": make([]byte, 32)}); err == nil {
		t.Fatalf("expected error for empty key id")
	}
	if _, err := NewSealer("a", map[string][]byte{"b": make([]byte, 32)}); err == nil {
		t.Fatalf("expected error for missing current key")
	}
	if _, err := NewSealer("a", map[string][]byte{"a": make([]byte, 16)}); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func mustKey(t *testing.T, b64 string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	return b
}
