// Package pii provides the normalization and hashing primitives used to build
// privacy-safe match keys for the Conversions API. Raw identity and location
// values never leave the process; only their normalized SHA-256 digests do.
package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes to NFD, drops combining marks, and recomposes, so
// "São Paulo" and "sao paulo" normalize to the same token.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a value for hashing: trim, lowercase, accent-fold.
// The empty string stands for an absent value and maps to itself.
func Normalize(v string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	if s == "" {
		return ""
	}
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		// Malformed UTF-8; fall back to the lowercased input rather than drop it.
		return s
	}
	return folded
}

// NormalizeAlnum normalizes like Normalize and additionally strips every
// character outside [0-9a-z]. Used for postal codes so "01310-100" and
// "01310100" hash identically.
func NormalizeAlnum(v string) string {
	s := Normalize(v)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Hash returns the lowercase hex SHA-256 digest of the UTF-8 bytes of v,
// or the empty string when v is empty. Unkeyed and stable across runs.
func Hash(v string) string {
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
