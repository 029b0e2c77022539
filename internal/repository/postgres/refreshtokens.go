package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/models"
	"github.com/ndenisov/accounts/internal/repository"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, user_agent, ip_address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) error {
	_, err := r.DB.Exec(ctx, saveToken,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt,
		token.UserAgent, token.IPAddress, token.CreatedAt, token.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getTokenByHash = `-- name: GetRefreshTokenByHash
SELECT id, user_id, token_hash, expires_at, user_agent, ip_address, created_at, updated_at
FROM refresh_tokens
WHERE token_hash = $1
`

func (r *RefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByHash, tokenHash)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrSessionNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const rotateToken = `-- name: RotateRefreshToken
UPDATE refresh_tokens
SET token_hash = $2, expires_at = $3, user_agent = $4, ip_address = $5, updated_at = now()
WHERE id = $1
`

// Rotate replaces the row's digest and expiry in place
// Last writer wins: two concurrent rotations of the same session do not
// conflict at this level, the later update simply strands the earlier token
func (r *RefreshTokenRepo) Rotate(ctx context.Context, id uuid.UUID, arg repository.RotateTokenParams) error {
	tag, err := r.DB.Exec(ctx, rotateToken, id, arg.TokenHash, arg.ExpiresAt, arg.UserAgent, arg.IPAddress)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSessionNotFound
	}
	return nil
}

const deleteByHashAndUser = `-- name: DeleteRefreshTokenByHashAndUser
DELETE FROM refresh_tokens
WHERE token_hash = $1 AND user_id = $2
`

func (r *RefreshTokenRepo) DeleteByHashAndUser(ctx context.Context, tokenHash string, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteByHashAndUser, tokenHash, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteForUser = `-- name: DeleteRefreshTokensForUser
DELETE FROM refresh_tokens
WHERE user_id = $1
`

func (r *RefreshTokenRepo) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteForUser, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteStale = `-- name: DeleteStaleRefreshTokens
DELETE FROM refresh_tokens
WHERE user_id = $1 AND (expires_at < $2 OR token_hash LIKE '$2b$%')
`

// DeleteStale drops the user's expired rows and rows still hashed with the
// retired bcrypt scheme, which can never match a sha256 digest lookup again
func (r *RefreshTokenRepo) DeleteStale(ctx context.Context, userID uuid.UUID, now time.Time) error {
	_, err := r.DB.Exec(ctx, deleteStale, userID, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UserAgent, &t.IPAddress, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
