package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/models"
)

const signingMethod = "HS256"

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID   `json:"uid"`
	Role   models.Role `json:"role"`
}

// TokenCodec signs and verifies one class of bearer token.
// Access and refresh tokens use separate codec instances, each with its own
// secret and lifetime, so one leaked secret never compromises the other class.
type TokenCodec struct {
	key []byte
	alg jwt.SigningMethod
	ttl time.Duration
}

func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token lifetime must be positive")
	}

	return &TokenCodec{
		key: []byte(secret),
		alg: jwt.GetSigningMethod(signingMethod),
		ttl: ttl,
	}, nil
}

// Sign issues a token for the user with issued-at and expiry claims.
// The returned ExpiresAt is the exp claim itself, so the stored record and
// the bearer token can never disagree about the lifetime.
func (c *TokenCodec) Sign(userID uuid.UUID, role models.Role) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(c.ttl)

	token := jwt.NewWithClaims(
		c.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
			Role:   role,
		},
	)

	signed, err := token.SignedString(c.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify parses and validates a token and returns its claims
// Returns apperrors.ErrTokenExpired when only the expiry elapsed and
// apperrors.ErrTokenInvalid for every other verification failure
func (c *TokenCodec) Verify(tokenString string) (Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
	)

	switch {
	case err == nil:
		return *claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	default:
		return Claims{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
}

// Lifetime of tokens issued by this codec
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}
