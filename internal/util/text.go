package util

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFC form of s. Only canonically equivalent
// spellings (precomposed vs combining marks) collapse; compatibility
// forms such as ligatures stay distinct.
func Normalize(s string) string {
	return norm.NFC.String(s)
}

// Truncate trims surrounding whitespace and cuts s to at most max bytes
// without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
