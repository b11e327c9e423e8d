package textutil

import "strings"

// NormalizeText removes NUL bytes (some PDF extractors emit them and Postgres
// text columns reject them), collapses all whitespace runs to a single space
// and trims. Idempotent: NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.Join(strings.Fields(s), " ")
}
