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
)

type ResetTokenRepo struct {
	DB DBTX
}

const saveResetToken = `-- name: SavePasswordResetToken
INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (r *ResetTokenRepo) Save(ctx context.Context, token models.PasswordResetToken) error {
	_, err := r.DB.Exec(ctx, saveResetToken,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.Used, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getActiveResetToken = `-- name: GetActivePasswordResetToken
SELECT id, user_id, token_hash, expires_at, used, created_at
FROM password_reset_tokens
WHERE user_id = $1 AND used = FALSE AND expires_at > $2
ORDER BY created_at DESC
LIMIT 1
`

func (r *ResetTokenRepo) GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (models.PasswordResetToken, error) {
	rows, _ := r.DB.Query(ctx, getActiveResetToken, userID, now)
	token, err := pgx.CollectOneRow(rows, rowToResetToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrResetTokenInvalid
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markResetTokenUsed = `-- name: MarkPasswordResetTokenUsed
UPDATE password_reset_tokens
SET used = TRUE
WHERE id = $1
`

func (r *ResetTokenRepo) MarkUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, markResetTokenUsed, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrResetTokenInvalid
	}
	return nil
}

const deleteUnusedResetTokens = `-- name: DeleteUnusedPasswordResetTokens
DELETE FROM password_reset_tokens
WHERE user_id = $1 AND used = FALSE
`

func (r *ResetTokenRepo) DeleteUnusedForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, deleteUnusedResetTokens, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToResetToken(row pgx.CollectableRow) (models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.CreatedAt)
	return t, err
}
