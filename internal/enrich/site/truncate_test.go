package site

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "Owner", n: 10, want: "Owner"},
		{name: "ascii", in: "Office Manager", n: 6, want: "Office"},
		{name: "keeps whole rune", in: "Café Owner", n: 4, want: "Caf"},
		{name: "rune fits", in: "Café Owner", n: 5, want: "Café"},
		{name: "four byte rune", in: "a\U0001F600b", n: 3, want: "a"},
	}
	for _, tt := range tests {
		got := truncateText(tt.in, tt.n)
		if got != tt.want {
			t.Fatalf("%s: truncateText(%q, %d)=%q want %q", tt.name, tt.in, tt.n, got, tt.want)
		}
	}

	long := strings.Repeat("é", maxSuggestionText)
	got := truncateText(long, maxSuggestionText)
	if !utf8.ValidString(got) || len(got) != maxSuggestionText {
		t.Fatalf("truncated to %d bytes, valid=%v", len(got), utf8.ValidString(got))
	}
}
