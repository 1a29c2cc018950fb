package store

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID()
		if len(id) != 32 {
			t.Fatalf("expected 32 chars, got %d: %s", len(id), id)
		}
		if strings.Contains(id, "-") {
			t.Fatalf("expected no dashes, got %s", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc123", true},
		{"user_1.files-2", true},
		{"", false},
		{"-leading", false},
		{".hidden", false},
		{"has space", false},
		{"slash/id", false},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		if got := validID(tt.id); got != tt.want {
			t.Fatalf("validID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestRandomDigits(t *testing.T) {
	code, err := randomDigits(otpDigits)
	if err != nil {
		t.Fatalf("random digits: %v", err)
	}
	if len(code) != otpDigits {
		t.Fatalf("expected %d digits, got %q", otpDigits, code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("expected digits only, got %q", code)
		}
	}

	if _, err := randomDigits(0); err == nil {
		t.Fatal("expected error for zero digits")
	}
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := generateSessionToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := generateSessionToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens")
	}
	if len(a) != 43 {
		t.Fatalf("expected 43 chars of base64url, got %d", len(a))
	}
}
