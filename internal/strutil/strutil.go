package strutil

import "unicode/utf8"

// TruncateUTF8 returns the longest prefix of s that is at most maxBytes
// bytes and does not split a multi-byte UTF-8 character.
func TruncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// Ellipsize shortens s to at most maxBytes bytes plus a trailing "…" when
// it had to cut.
func Ellipsize(s string, maxBytes int) string {
	cut := TruncateUTF8(s, maxBytes)
	if len(cut) == len(s) {
		return s
	}
	return cut + "…"
}
