package handlers

import (
	"net/http"
	"time"

	"github.com/ndenisov/accounts/internal/handlers/middleware"
	"github.com/ndenisov/accounts/internal/models"
)

// RefreshTokenCookie is the only place browser clients ever see the
// long-lived token; it is http-only and invisible to front-end code
const RefreshTokenCookie = "refreshToken"

type CookieConfig struct {
	// Secure is set in production so cookies travel over https only
	Secure bool
}

// setSessionCookies sets both token cookies on the response.
// Max-age mirrors each token's own expiry claim.
func setSessionCookies(w http.ResponseWriter, pair models.TokenPair, cfg CookieConfig) {
	http.SetCookie(w, sessionCookie(RefreshTokenCookie, pair.Refresh.Value, pair.Refresh.ExpiresAt, cfg))
	http.SetCookie(w, sessionCookie(middleware.AccessTokenCookie, pair.Access.Value, pair.Access.ExpiresAt, cfg))
}

// clearSessionCookies removes both token cookies unconditionally
func clearSessionCookies(w http.ResponseWriter, cfg CookieConfig) {
	for _, name := range []string{RefreshTokenCookie, middleware.AccessTokenCookie} {
		cookie := sessionCookie(name, "", time.Time{}, cfg)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func sessionCookie(name string, value string, expiresAt time.Time, cfg CookieConfig) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   cfg.Secure,
	}
}

// refreshTokenFromRequest returns the raw refresh token cookie value
// Empty string when the cookie is absent: refresh tokens are accepted from
// cookies only, never from headers or bodies
func refreshTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
