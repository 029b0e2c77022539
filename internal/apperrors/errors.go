package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Login with unknown email or wrong password
	// Callers must not reveal which factor failed
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token is expired")
	ErrTokenMissing = errors.New("token is missing")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionMismatch = errors.New("session does not belong to token owner")

	// Uniform failure for every reset-token problem (unknown email, expired,
	// used or mismatched token) to avoid oracle attacks
	ErrResetTokenInvalid = errors.New("reset token is invalid")

	ErrForbidden = errors.New("operation is not allowed")
)
