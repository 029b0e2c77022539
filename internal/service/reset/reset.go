package reset

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/mailer"
	"github.com/ndenisov/accounts/internal/models"
	"github.com/ndenisov/accounts/internal/repository"
	"github.com/ndenisov/accounts/internal/service/auth"
)

const defaultTokenTTL = time.Hour

// Returned for existing and non-existing emails alike
const GenericMessage = "If your email exists, a password reset link has been sent."

const mailSubject = "Password Reset Request"

const mailBody = `<p>You requested a password reset for your account. Click the link below to reset your password:</p>
<p><a href="%s">Reset Password</a></p>
<p>This link will expire in 1 hour. If you did not request this, please ignore this email.</p>`

type Config struct {
	// Base URL of the front end, used to build the reset link
	FrontendURL string

	// Reset grant lifetime; default is one hour
	TokenTTL time.Duration

	Hasher auth.PasswordHasher
	Logger logger.Logger
}

// Service owns the password-reset token lifecycle: it creates one-time
// grants, mails the raw secret to the user and consumes grants to set a new
// password, revoking every open session of the user on success.
type Service struct {
	storage     repository.Storage
	mailer      mailer.Mailer
	hasher      auth.PasswordHasher
	frontendURL string
	tokenTTL    time.Duration
	logger      logger.Logger
}

func NewService(cfg Config, storage repository.Storage, m mailer.Mailer) (*Service, error) {
	if storage == nil || m == nil {
		return nil, errors.New("storage and mailer must not be nil")
	}

	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.DefaultHasher
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Service{
		storage:     storage,
		mailer:      m,
		hasher:      cfg.Hasher,
		frontendURL: cfg.FrontendURL,
		tokenTTL:    cfg.TokenTTL,
		logger:      cfg.Logger,
	}, nil
}

// Request creates a reset grant for the account and emails the raw secret.
// The caller renders GenericMessage whenever the returned error is nil, so
// an unknown email is indistinguishable from a successful request. Mail
// delivery failures are logged and swallowed for the same reason.
func (s *Service) Request(ctx context.Context, email string) error {
	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.logger.Info("password reset requested for unknown email")
		return nil
	case err != nil:
		return fmt.Errorf("error while looking up user. Err: %w", err)
	}

	raw, digest, err := auth.GenerateSecret()
	if err != nil {
		return err
	}

	// Only one live grant at a time: earlier unused grants die with the new one
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		if err := st.Reset().DeleteUnusedForUser(ctx, user.ID); err != nil {
			return err
		}
		return st.Reset().Save(ctx, models.PasswordResetToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			TokenHash: digest,
			ExpiresAt: time.Now().Add(s.tokenTTL),
			Used:      false,
			CreatedAt: time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("error while storing reset token. Err: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s&email=%s", s.frontendURL, raw, url.QueryEscape(email))

	if err := s.mailer.Send(ctx, user.Email, mailSubject, fmt.Sprintf(mailBody, link)); err != nil {
		s.logger.Error("error while sending password reset email", "user_id", user.ID, "error", err.Error())
	} else {
		s.logger.Info("password reset email sent", "user_id", user.ID)
	}

	return nil
}

// Consume validates a raw reset token for the account and sets a new
// password. Every failure mode (unknown email, no live grant, digest
// mismatch) collapses into apperrors.ErrResetTokenInvalid.
//
// The grant is marked used before the password is written: a crash between
// the two steps leaves the token consumed rather than replayable. All
// refresh tokens of the user are removed afterwards, so sessions possibly
// established under compromised credentials die with the old password.
func (s *Service) Consume(ctx context.Context, rawToken string, email string, newPassword string) error {
	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.logger.Info("password reset attempt for unknown email")
		return apperrors.ErrResetTokenInvalid
	case err != nil:
		return fmt.Errorf("error while looking up user. Err: %w", err)
	}

	grant, err := s.storage.Reset().GetActive(ctx, user.ID, time.Now())
	if err != nil {
		return err
	}

	if auth.HashToken(rawToken) != grant.TokenHash {
		s.logger.Warn("password reset token digest mismatch", "user_id", user.ID)
		return apperrors.ErrResetTokenInvalid
	}

	if err := s.storage.Reset().MarkUsed(ctx, grant.ID); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, Err: %w", err)
	}

	if _, err := s.storage.User().UpdateUser(ctx, user.ID, repository.UpdateUserParams{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("error while updating password. Err: %w", err)
	}

	if err := s.storage.Refresh().DeleteForUser(ctx, user.ID); err != nil {
		return fmt.Errorf("error while revoking sessions. Err: %w", err)
	}

	s.logger.Info("password reset completed, all sessions revoked", "user_id", user.ID)

	return nil
}
