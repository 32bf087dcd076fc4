package postgres

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateRunesShortStringUntouched(t *testing.T) {
	in := "kurzes Gespräch"
	if got := truncateRunes(in, 500); got != in {
		t.Fatalf("truncateRunes changed a short string: %q", got)
	}
}

func TestTruncateRunesCutsOnRuneBoundary(t *testing.T) {
	// Two-byte runes throughout, so a byte slice at any odd offset
	// would split a character.
	in := strings.Repeat("ćđšžö", 200)
	got := truncateRunes(in, 500)

	if n := utf8.RuneCountInString(got); n != 500 {
		t.Fatalf("rune count = %d, want 500", n)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated string is not valid UTF-8")
	}
	if !strings.HasPrefix(in, got) {
		t.Fatalf("truncated string is not a prefix of the input")
	}
}
