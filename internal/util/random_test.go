package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomHex(t *testing.T) {
	const hexChars = "0123456789abcdef"
	for _, length := range []int{0, 1, 8, 32} {
		got := GenerateRandomHex(length)
		if len(got) != length {
			t.Errorf("GenerateRandomHex(%d) returned %d characters", length, len(got))
		}
		for _, c := range got {
			if !strings.ContainsRune(hexChars, c) {
				t.Errorf("GenerateRandomHex produced non-hex character %q", c)
			}
		}
	}
	if GenerateRandomHex(-1) != "" {
		t.Error("negative length should produce empty string")
	}
}

func TestGenerateAccessCode(t *testing.T) {
	code := GenerateAccessCode()
	if len(code) != 8 {
		t.Errorf("access code length = %d, want 8", len(code))
	}
	// Two codes colliding is astronomically unlikely; a collision here means
	// the generator is broken.
	if code == GenerateAccessCode() {
		t.Error("consecutive access codes are identical")
	}
}

func TestGenerateRandomAlphaNumeric(t *testing.T) {
	got := GenerateRandomAlphaNumeric(64)
	if len(got) != 64 {
		t.Fatalf("length = %d, want 64", len(got))
	}
	for _, c := range got {
		isDigit := c >= '0' && c <= '9'
		isUpper := c >= 'A' && c <= 'Z'
		isLower := c >= 'a' && c <= 'z'
		if !isDigit && !isUpper && !isLower {
			t.Errorf("non-alphanumeric character %q", c)
		}
	}
}
