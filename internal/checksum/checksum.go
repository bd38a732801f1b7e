// Package checksum fingerprints document content for change detection and
// optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Sum for text.
func String(s string) string {
	return Sum([]byte(s))
}

// Matches reports whether expected is empty or equal to the checksum of s.
func Matches(expected, s string) bool {
	return expected == "" || expected == String(s)
}
