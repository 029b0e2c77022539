package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is one active session on one device.
// Only the sha256 digest of the raw token is stored; the raw value never
// touches the database. The row is updated in place on rotation so the
// session identity (ID) survives refreshes.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UserAgent string
	IPAddress string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PasswordResetToken is a single-use recovery grant.
// Once Used is set the token must never validate again.
type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Pair of tokens returned to the user on signup, login and refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// RequestMeta carries diagnostic request attributes stored on sessions
type RequestMeta struct {
	UserAgent string
	IPAddress string
}
