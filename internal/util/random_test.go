package util

import (
	"strings"
	"testing"
)

func TestGenerateBookingCodeFormat(t *testing.T) {
	code := GenerateBookingCode()

	if len(code) != 9 {
		t.Fatalf("expected 9 characters, got %d (%q)", len(code), code)
	}
	if !strings.HasPrefix(code, "IVX") {
		t.Errorf("expected IVX prefix, got %q", code)
	}
	for _, r := range code[3:] {
		isDigit := r >= '0' && r <= '9'
		isUpper := r >= 'A' && r <= 'Z'
		if !isDigit && !isUpper {
			t.Errorf("unexpected character %q in booking code %q", r, code)
		}
	}
}

func TestGenerateBookingCodeCollisions(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := GenerateBookingCode()
		if seen[code] {
			t.Fatalf("booking code %q repeated within 200 draws", code)
		}
		seen[code] = true
	}
}

func TestGenerateRandomUpperAlphaNumericLength(t *testing.T) {
	if got := GenerateRandomUpperAlphaNumeric(0); got != "" {
		t.Errorf("expected empty string for zero length, got %q", got)
	}
	if got := GenerateRandomUpperAlphaNumeric(-3); got != "" {
		t.Errorf("expected empty string for negative length, got %q", got)
	}
	if got := GenerateRandomUpperAlphaNumeric(32); len(got) != 32 {
		t.Errorf("expected 32 characters, got %d", len(got))
	}
}
