package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const secretBytesLen = 32

// HashToken returns the sha256 hex digest of a raw token.
// Deliberately unsalted: the digest doubles as a unique lookup key, so the
// same raw token must always map to the same stored value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateSecret returns a random 32 byte hex-encoded secret and its digest.
// The raw value goes to the user, only the digest is persisted.
func GenerateSecret() (raw string, digest string, err error) {
	b := make([]byte, secretBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("error while generating secret. Err: %w", err)
	}

	raw = hex.EncodeToString(b)
	return raw, HashToken(raw), nil
}
