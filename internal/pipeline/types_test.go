package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTailChars(t *testing.T) {
	if got := tailChars("short", 10); got != "short" {
		t.Errorf("unexpected: %q", got)
	}
	if got := tailChars("abcdefgh", 3); got != "fgh" {
		t.Errorf("unexpected: %q", got)
	}
	if got := tailChars("abcdefgh", 0); got != "abcdefgh" {
		t.Errorf("non-positive bound must be a no-op, got %q", got)
	}
}

func TestTailCharsKeepsRuneBoundary(t *testing.T) {
	s := strings.Repeat("ü", 10) + "日本語"
	for n := 1; n <= len(s); n++ {
		got := tailChars(s, n)
		if !utf8.ValidString(got) {
			t.Fatalf("tailChars(%d) produced invalid UTF-8: %q", n, got)
		}
		if len(got) > n {
			t.Fatalf("tailChars(%d) returned %d bytes", n, len(got))
		}
		if !strings.HasSuffix(s, got) {
			t.Fatalf("tailChars(%d) is not a suffix: %q", n, got)
		}
	}
}
