package strutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateUTF8(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"empty", "", 10, ""},
		{"zero_max", "hello", 0, ""},
		{"ascii", "hello world", 5, "hello"},
		{"no_truncation", "short", 100, "short"},
		{"swedish_boundary", "Göteborg", 2, "G"},
		{"swedish_exact", "Gö", 3, "Gö"},
		{"superscript", "30m²", 4, "30m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateUTF8(tc.in, tc.max)
			if got != tc.want {
				t.Fatalf("TruncateUTF8(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

func TestTruncateUTF8_AlwaysValidUTF8(t *testing.T) {
	s := strings.Repeat("Järntorget – Ölstugan ", 100)
	for limit := 1; limit <= len(s); limit += 7 {
		got := TruncateUTF8(s, limit)
		if !utf8.ValidString(got) {
			t.Fatalf("invalid UTF-8 at limit=%d: %q", limit, got)
		}
		if len(got) > limit {
			t.Fatalf("too long at limit=%d: len=%d", limit, len(got))
		}
	}
}

func TestEllipsize(t *testing.T) {
	if got := Ellipsize("Main St 1", 20); got != "Main St 1" {
		t.Fatalf("Ellipsize(short) = %q", got)
	}
	if got := Ellipsize("Eklandagatan 86", 4); got != "Ekla…" {
		t.Fatalf("Ellipsize(long) = %q, want %q", got, "Ekla…")
	}
}
