package id

import (
	"crypto/rand"
	"encoding/hex"
)

const maxLen = 128

// New returns a random 32 character hex identifier.
func New() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req-fallback-id"
	}
	return hex.EncodeToString(b[:])
}

// Valid reports whether an externally supplied ID is safe to echo back and log:
// non-empty, bounded, and limited to [A-Za-z0-9._-].
func Valid(s string) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}
