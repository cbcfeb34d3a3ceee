package domain

import (
	"strings"
	"unicode/utf8"
)

// CleanText makes s safe to store in a text column: invalid UTF-8 and NUL
// bytes are dropped and, when max > 0, the result is cut to at most max
// bytes on a rune boundary with "..." appended.
func CleanText(s string, max int) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}
