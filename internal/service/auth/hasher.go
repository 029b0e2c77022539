package auth

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// Fixed work factor for password hashes
const bcryptCost = 12

// Interface to create or check user password hashes
type PasswordHasher interface {
	// Generate hash from password
	Hash(password string) (string, error)

	// Check password against a known hash
	// A mismatch is not an error, just false
	Verify(password string, hashedPassword string) bool
}

// Bcrypt password hasher
// Passwords are pre-hashed with sha256 so bcrypt's 72 byte input limit
// never truncates long passwords
type BcryptHasher struct{}

var DefaultHasher PasswordHasher = BcryptHasher{}

func (h BcryptHasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], bcryptCost)
	return string(hash), err
}

func (h BcryptHasher) Verify(password string, hashedPassword string) bool {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:]) == nil
}
