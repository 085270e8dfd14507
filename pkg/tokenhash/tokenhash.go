// Package tokenhash generates opaque secrets and derives the fingerprints
// under which they are stored. Only fingerprints ever reach the database.
package tokenhash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RefreshTokenSize is the number of random bytes in a refresh secret.
const RefreshTokenSize = 64

// Generate returns size cryptographically random bytes, hex encoded.
func Generate(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// Fingerprint returns the lowercase hex SHA-256 digest of raw.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
