package utils

import "testing"

func TestSanitizeIdentifier(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"task:001", "task-001"},
		{"owner/repo", "owner-repo"},
		{"has space", "has-space"},
		{"back\\slash", "back-slash"},
		{"already-clean_1.2", "already-clean_1.2"},
	}

	for _, tc := range testCases {
		if got := SanitizeIdentifier(tc.input); got != tc.expected {
			t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef-0000"); got != "0123456789ab" {
		t.Errorf("Expected 12-char short ID, got %q", got)
	}
	if got := ShortID("short"); got != "short" {
		t.Errorf("Expected short input unchanged, got %q", got)
	}
}

func TestTokenCounter_Fallback(t *testing.T) {
	// nil counter falls back to character estimation
	var tc *TokenCounter
	if got := tc.CountTokens("12345678"); got != 2 {
		t.Errorf("Expected fallback estimate 2, got %d", got)
	}
}

func TestTokenCounter_Truncate(t *testing.T) {
	tc, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}

	text := "the quick brown fox jumps over the lazy dog"
	truncated := tc.TruncateToTokenLimit(text, 3)
	if len(truncated) >= len(text) {
		t.Errorf("Expected truncation, got %q", truncated)
	}

	// Within limit: unchanged
	if got := tc.TruncateToTokenLimit("short", 100); got != "short" {
		t.Errorf("Expected text unchanged, got %q", got)
	}
}
