// Package content computes the exact-match digest used as the dedup key.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher implements crawl.Hasher using SHA-256 over normalized text.
type Hasher struct{}

// New returns a content Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Digest normalizes title and content and returns a 64-character hex
// digest. Normalization trims and collapses whitespace runs; case and
// punctuation are preserved, so this is an exact-match key, not a fuzzy
// one.
func (h *Hasher) Digest(title, content string) string {
	normalized := Normalize(title) + "\n" + Normalize(content)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Normalize collapses internal whitespace runs to single spaces and trims
// the ends. Byte-identical normalized text always hashes identically.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
