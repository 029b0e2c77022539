package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/models"
)

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Role         models.Role
}

// Fields to change; nil means keep the stored value
type UpdateUserParams struct {
	Email        *string
	Role         *models.Role
	PasswordHash *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// Must return apperrors.ErrUserAlreadyExists if the email is taken
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id or email
	// Must return apperrors.ErrUserNotFound if absent
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	ListUsers(ctx context.Context) ([]models.User, error)

	// Update user fields and bump updated_at
	// Must return apperrors.ErrUserNotFound if absent
	UpdateUser(ctx context.Context, id uuid.UUID, arg UpdateUserParams) (models.User, error)

	// Delete user; its tokens go with it (FK cascade)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

type RotateTokenParams struct {
	TokenHash string
	ExpiresAt time.Time
	UserAgent string
	IPAddress string
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save new session row
	Save(ctx context.Context, token models.RefreshToken) error

	// Get session row by token digest
	// Must return apperrors.ErrSessionNotFound if absent
	GetByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error)

	// Replace digest, expiry and request meta of an existing row in place
	// The row keeps its id, so the session identity survives rotation
	Rotate(ctx context.Context, id uuid.UUID, arg RotateTokenParams) error

	// Delete one session scoped to (digest, user) pair
	DeleteByHashAndUser(ctx context.Context, tokenHash string, userID uuid.UUID) error

	// Delete every session of the user (password reset, account removal)
	DeleteForUser(ctx context.Context, userID uuid.UUID) error

	// Delete the user's rows that expired before 'now' or that still carry a
	// bcrypt digest from the pre-sha256 scheme
	DeleteStale(ctx context.Context, userID uuid.UUID, now time.Time) error
}

// PasswordResetToken repository interface
type ResetTokenRepo interface {
	// Save new reset grant
	Save(ctx context.Context, token models.PasswordResetToken) error

	// Most recently created unused and unexpired grant of the user
	// Must return apperrors.ErrResetTokenInvalid if there is none
	GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (models.PasswordResetToken, error)

	// Mark a grant consumed; once set it must never validate again
	MarkUsed(ctx context.Context, id uuid.UUID) error

	// Drop the user's unused grants so only one stays live at a time
	DeleteUnusedForUser(ctx context.Context, userID uuid.UUID) error
}

// Storage aggregates entity repositories over one connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Reset() ResetTokenRepo

	// Run fn within a transaction
	// Commit on nil return, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
