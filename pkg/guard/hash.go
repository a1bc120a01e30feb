package guard

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashPrefix marks the digest algorithm of every content hash.
const HashPrefix = "sha256:"

// ComputeContentHash returns the deterministic digest of b as "sha256:<hex>".
func ComputeContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// MatchesHash reports whether b hashes to expected, in constant time.
func MatchesHash(b []byte, expected string) bool {
	got := ComputeContentHash(b)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// ValidHash reports whether h is a well-formed content hash.
func ValidHash(h string) bool {
	hexPart, ok := strings.CutPrefix(h, HashPrefix)
	if !ok || len(hexPart) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}
