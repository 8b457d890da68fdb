package util

import "strings"

// SanitizeText strips bytes that break downstream storage of extracted page
// text. PDF extraction regularly produces NUL bytes and stray control
// characters, and Postgres rejects NUL in text columns outright.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		switch {
		case ch == '\n' || ch == '\r' || ch == '\t':
			b.WriteRune(ch)
		case ch < 0x20:
			// drop NUL and other controls
		default:
			b.WriteRune(ch)
		}
	}
	return strings.TrimSpace(b.String())
}
