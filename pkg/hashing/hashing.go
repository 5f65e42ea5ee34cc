// Package hashing computes content-addressed digests for governed
// resource versions. The digest algorithm is recorded alongside the
// hash value so it can be upgraded without breaking older records.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultAlgorithm is the digest algorithm used for new versions.
const DefaultAlgorithm = "sha256"

// Digest computes the content digest for a version payload using the
// default algorithm. The result is "<algorithm>:<hex>".
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return DefaultAlgorithm + ":" + hex.EncodeToString(sum[:])
}

// Algorithm returns the algorithm prefix of a stored digest. Digests
// written before the prefix convention are treated as sha256.
func Algorithm(digest string) string {
	if i := strings.IndexByte(digest, ':'); i > 0 {
		return digest[:i]
	}
	return DefaultAlgorithm
}

// Verify recomputes the digest of content and compares it to the stored
// digest. It returns an error naming both values on mismatch.
func Verify(content, stored string) error {
	switch Algorithm(stored) {
	case DefaultAlgorithm:
		computed := Digest(content)
		if !strings.EqualFold(normalize(computed), normalize(stored)) {
			return fmt.Errorf("digest mismatch: stored %s, computed %s", stored, computed)
		}
		return nil
	default:
		return fmt.Errorf("unsupported digest algorithm %q", Algorithm(stored))
	}
}

// normalize strips a missing algorithm prefix so legacy bare-hex digests
// still verify.
func normalize(digest string) string {
	if i := strings.IndexByte(digest, ':'); i > 0 {
		return digest[i+1:]
	}
	return digest
}
