package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ndenisov/accounts/internal/handlers/userctx"
	"github.com/ndenisov/accounts/internal/models"
)

// AccessTokenCookie is where browser clients carry the short-lived token
const AccessTokenCookie = "accessToken"

type identityResolver interface {
	// Resolve the user behind a raw access token
	ResolveIdentity(ctx context.Context, rawToken string) (models.User, error)
}

// IdentityMiddleware resolves the caller's identity once per request from the
// Authorization header (preferred) or the access-token cookie and stores it
// in the request context.
//
// Resolution failures never abort the request: handlers decide individually
// whether anonymous access is allowed.
func IdentityMiddleware(resolver identityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.ResolveIdentity(r.Context(), raw)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the raw access token from the request
// Header takes precedence over the cookie
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
