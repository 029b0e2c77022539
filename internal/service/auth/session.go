package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/models"
	"github.com/ndenisov/accounts/internal/repository"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour

	unknownMeta = "Unknown"
)

type SessionConfig struct {
	// Distinct signing secrets for access and refresh tokens
	// Both required to be set
	AccessSecret  string
	RefreshSecret string

	// Token lifetimes
	// If not set then defaults are used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Logger logger.Logger
}

// SessionService issues, rotates and revokes user sessions.
// A session is a refresh_tokens row keyed by the sha256 digest of the signed
// refresh token; rotation rewrites the row in place so the session identity
// is stable across refreshes.
type SessionService struct {
	access  *TokenCodec
	refresh *TokenCodec
	storage repository.Storage
	logger  logger.Logger
}

func NewSessionService(cfg SessionConfig, storage repository.Storage) (*SessionService, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage must not be nil")
	}
	if cfg.AccessSecret != "" && cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("access and refresh secrets must differ")
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	access, err := NewTokenCodec(cfg.AccessSecret, cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("access codec: %w", err)
	}
	refresh, err := NewTokenCodec(cfg.RefreshSecret, cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh codec: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &SessionService{
		access:  access,
		refresh: refresh,
		storage: storage,
		logger:  log,
	}, nil
}

// Issue mints an access and refresh token pair for the user and persists the
// new session. Stale rows of the same user (expired, or still carrying a
// bcrypt digest from the retired hashing scheme) are dropped on the way.
func (s *SessionService) Issue(ctx context.Context, user models.User, meta models.RequestMeta) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := s.access.Sign(user.ID, user.Role)
	if err != nil {
		return pair, err
	}
	refresh, err := s.refresh.Sign(user.ID, user.Role)
	if err != nil {
		return pair, err
	}

	now := time.Now()
	if err := s.storage.Refresh().DeleteStale(ctx, user.ID, now); err != nil {
		return pair, fmt.Errorf("error while cleaning stale sessions. Err: %w", err)
	}

	token := models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashToken(refresh.Value),
		// Expiry copied from the token's own exp claim, never recomputed
		ExpiresAt: refresh.ExpiresAt,
		UserAgent: orUnknown(meta.UserAgent),
		IPAddress: orUnknown(meta.IPAddress),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.Refresh().Save(ctx, token); err != nil {
		return pair, fmt.Errorf("error while saving session. Err: %w", err)
	}

	s.logger.Debug("session issued", "user_id", user.ID)

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Rotate exchanges a valid refresh token for a fresh pair, rewriting the
// stored session row in place.
//
// A token that verifies but has no matching row, or whose row belongs to a
// different user, is treated as replayed or revoked and rejected. Only that
// request is denied; other sessions of the user stay untouched.
func (s *SessionService) Rotate(ctx context.Context, rawRefresh string, meta models.RequestMeta) (models.TokenPair, error) {
	var pair models.TokenPair

	if rawRefresh == "" {
		return pair, apperrors.ErrTokenMissing
	}

	claims, err := s.refresh.Verify(rawRefresh)
	if err != nil {
		return pair, err
	}

	row, err := s.storage.Refresh().GetByHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return pair, err
	}
	if row.UserID != claims.UserID {
		s.logger.Warn("refresh token and session owner mismatch, potential reuse", "user_id", claims.UserID)
		return pair, apperrors.ErrSessionMismatch
	}

	// Role is read back from the user record, not trusted from the old token,
	// so a role change takes effect on the next refresh
	user, err := s.storage.User().GetUserByID(ctx, row.UserID)
	if err != nil {
		return pair, err
	}

	access, err := s.access.Sign(user.ID, user.Role)
	if err != nil {
		return pair, err
	}
	refresh, err := s.refresh.Sign(user.ID, user.Role)
	if err != nil {
		return pair, err
	}

	err = s.storage.Refresh().Rotate(ctx, row.ID, repository.RotateTokenParams{
		TokenHash: HashToken(refresh.Value),
		ExpiresAt: refresh.ExpiresAt,
		UserAgent: firstNonEmpty(meta.UserAgent, row.UserAgent, unknownMeta),
		IPAddress: firstNonEmpty(meta.IPAddress, row.IPAddress, unknownMeta),
	})
	if err != nil {
		return pair, fmt.Errorf("error while rotating session. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// End revokes the session matching the refresh token.
// Best effort: an invalid or already revoked token is not an error, logout
// must always succeed from the caller's perspective.
func (s *SessionService) End(ctx context.Context, rawRefresh string) {
	if rawRefresh == "" {
		return
	}

	claims, err := s.refresh.Verify(rawRefresh)
	if err != nil {
		s.logger.Debug("logout with unverifiable refresh token", "error", err.Error())
		return
	}

	err = s.storage.Refresh().DeleteByHashAndUser(ctx, HashToken(rawRefresh), claims.UserID)
	if err != nil {
		s.logger.Warn("error while revoking session on logout", "error", err.Error())
		return
	}

	s.logger.Info("session revoked", "user_id", claims.UserID)
}

// VerifyAccess parses and validates an access token
func (s *SessionService) VerifyAccess(rawAccess string) (Claims, error) {
	return s.access.Verify(rawAccess)
}

// ResolveIdentity returns the user behind a raw access token.
// One identity resolution per request, invoked before handler dispatch.
func (s *SessionService) ResolveIdentity(ctx context.Context, rawToken string) (models.User, error) {
	claims, err := s.access.Verify(rawToken)
	if err != nil {
		return models.User{}, err
	}

	return s.storage.User().GetUserByID(ctx, claims.UserID)
}

// Lifetimes of the issued tokens, used to set cookie max-age
func (s *SessionService) AccessTTL() time.Duration  { return s.access.TTL() }
func (s *SessionService) RefreshTTL() time.Duration { return s.refresh.TTL() }

func orUnknown(v string) string {
	if v == "" {
		return unknownMeta
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
