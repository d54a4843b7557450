// Package builtin contains small, reusable value helpers used by the parser,
// the normalizer and the fact projection.
package builtin

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace, so hot
// paths can skip strings.TrimSpace for already-clean values.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// NormalizeName trims s and converts it to Unicode NFC, so the same entity
// name written with combining marks or precomposed runes exports identically.
func NormalizeName(s string) string {
	if HasEdgeSpace(s) {
		s = strings.TrimSpace(s)
	}
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}
