// Package canon normalizes free text into a stable comparison key.
package canon

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// maxPasses bounds the fixpoint loop. NFKC and case folding can expose new
// whitespace or trailing commas, but two passes already settle real input.
const maxPasses = 4

var folder = cases.Fold()

// Text returns the canonical form of s: NFKC-normalized, case-folded, with
// quotes, backslashes and control characters removed, whitespace runs
// collapsed to one space and trailing commas trimmed.
//
// Text is idempotent: Text(Text(s)) == Text(s).
func Text(s string) string {
	out := s
	for range maxPasses {
		next := pass(out)
		if next == out {
			return next
		}
		out = next
	}
	return out
}

// Set canonicalizes every entry and returns the resulting membership set.
// Empty canonical values are dropped.
func Set(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if c := Text(v); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

func pass(s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t' || unicode.IsSpace(r):
			space = true
			continue
		case r == '"' || r == '\\':
			continue
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	return strings.TrimRight(b.String(), ", ")
}
