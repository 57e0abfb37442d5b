package listing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2/1/2006",
}

// firstLine returns the first non-blank line of s, trimmed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// parseArea reads the leading number of values like "25,5 m²".
func parseArea(s string) (float64, error) {
	s = firstLine(s)
	var b strings.Builder
scan:
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == ',' || r == '.') && b.Len() > 0:
			b.WriteRune('.')
		case b.Len() > 0:
			break scan
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("area %q: no number", s)
	}
	v, err := strconv.ParseFloat(strings.TrimRight(b.String(), "."), 64)
	if err != nil {
		return 0, fmt.Errorf("area %q: %w", s, err)
	}
	return v, nil
}

// parseRent reads amounts like "5 432 kr/mån", ignoring group separators.
func parseRent(s string) (int64, error) {
	s = firstLine(s)
	if i := strings.IndexAny(s, ",."); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("rent %q: no number", s)
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rent %q: %w", s, err)
	}
	return v, nil
}

func parseDate(s string) (time.Time, error) {
	s = firstLine(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("free-from date %q: unsupported format", s)
}
