package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type sessionService interface {
	// Mint a token pair and persist a new session for the user
	Issue(ctx context.Context, user models.User, meta models.RequestMeta) (models.TokenPair, error)

	// Exchange a refresh token for a fresh pair, rewriting the session in place
	// Failures: apperrors.ErrTokenMissing / ErrTokenInvalid / ErrTokenExpired /
	// ErrSessionNotFound / ErrSessionMismatch
	Rotate(ctx context.Context, rawRefresh string, meta models.RequestMeta) (models.TokenPair, error)

	// Best-effort session revocation; never fails
	End(ctx context.Context, rawRefresh string)

	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type userService interface {
	// Has to return apperrors.ErrUserAlreadyExists when the email is taken
	Register(ctx context.Context, email string, password string) (models.User, error)

	// Has to return apperrors.ErrInvalidCredentials on any credential failure
	Authenticate(ctx context.Context, email string, password string) (models.User, error)

	Get(ctx context.Context, id uuid.UUID) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, id uuid.UUID, email *string, role *models.Role) (models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type resetService interface {
	// Create and mail a reset grant; nil for unknown emails too
	Request(ctx context.Context, email string) error

	// Consume a grant and set the new password
	// Has to return apperrors.ErrResetTokenInvalid for every token problem
	Consume(ctx context.Context, rawToken string, email string, newPassword string) error
}

func NewRouter(
	sessions sessionService,
	users userService,
	resets resetService,
	cookies CookieConfig,
	log logger.Logger,
	mds ...func(next http.Handler) http.Handler,
) http.Handler {
	api := http.NewServeMux()

	api.Handle("POST /signup", handleSignup(users, sessions, cookies, log))
	api.Handle("POST /login", handleLogin(users, sessions, cookies, log))
	api.Handle("POST /refresh-token", handleTokenRefresh(sessions, cookies, log))
	api.Handle("POST /logout", handleLogout(sessions, cookies))

	api.Handle("POST /request-password-reset", handleRequestPasswordReset(resets, log))
	api.Handle("POST /reset-password", handleResetPassword(resets, log))

	api.Handle("GET /me", handleUserMe(users))
	api.Handle("GET /users", handleListUsers(users, log))
	api.Handle("PATCH /users/{id}", handleUpdateUser(users, log))
	api.Handle("DELETE /users/{id}", handleDeleteUser(users, log))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	return chain(root, mds...)
}
