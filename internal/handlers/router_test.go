package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndenisov/accounts/internal/handlers/middleware"
	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/models"
	"github.com/ndenisov/accounts/internal/repository"
	"github.com/ndenisov/accounts/internal/repository/postgres"
	"github.com/ndenisov/accounts/internal/service/auth"
	"github.com/ndenisov/accounts/internal/service/reset"
	"github.com/ndenisov/accounts/internal/service/user"
	"github.com/ndenisov/accounts/internal/testutil"
)

// Mailer that records sends instead of delivering them
type recordingMailer struct {
	body []string
}

func (m *recordingMailer) Send(_ context.Context, _ string, _ string, html string) error {
	m.body = append(m.body, html)
	return nil
}

type testEnv struct {
	url      string
	storage  repository.Storage
	sessions *auth.SessionService
	users    *user.UserService
	mailer   *recordingMailer
}

func Test_Router(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run an http server over production services in a rolled-back transaction
	withServer := func(t *testing.T, fn func(env testEnv)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			sessions, err := auth.NewSessionService(auth.SessionConfig{
				AccessSecret:  "access-secret",
				RefreshSecret: "refresh-secret",
			}, storage)
			require.NoError(t, err)

			users := user.NewService(auth.DefaultHasher, storage)

			mailer := &recordingMailer{}
			resets, err := reset.NewService(reset.Config{FrontendURL: "http://localhost:3000"}, storage, mailer)
			require.NoError(t, err)

			h := NewRouter(
				sessions, users, resets,
				CookieConfig{Secure: false},
				logger.NewNoOpLogger(),
				middleware.IdentityMiddleware(sessions),
			)
			srv := httptest.NewServer(h)
			defer srv.Close()

			fn(testEnv{
				url:      srv.URL,
				storage:  storage,
				sessions: sessions,
				users:    users,
				mailer:   mailer,
			})
		})
	}

	// Request helper: json body in, response and body text out
	do := func(t *testing.T, method string, url string, data string, decorate ...func(*http.Request)) (*http.Response, string) {
		t.Helper()

		var body io.Reader
		if data != "" {
			body = strings.NewReader(data)
		}
		req, err := http.NewRequest(method, url, body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		for _, d := range decorate {
			d(req)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		return resp, string(raw)
	}

	cookieByName := func(t *testing.T, resp *http.Response, name string) *http.Cookie {
		t.Helper()
		for _, c := range resp.Cookies() {
			if c.Name == name {
				return c
			}
		}
		t.Fatalf("cookie %q not found in response", name)
		return nil
	}

	withBearer := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}
	withCookie := func(name string, value string) func(*http.Request) {
		return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
	}

	signup := func(t *testing.T, env testEnv, email string) (accessToken string, refreshCookie *http.Cookie, userID string) {
		t.Helper()

		data := fmt.Sprintf(`{"email": %q, "password": "StrongEnoughPassword"}`, email)
		resp, body := do(t, "POST", env.url+"/api/signup", data)
		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

		var parsed struct {
			Token string `json:"token"`
			User  struct {
				ID string `json:"id"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &parsed))

		return parsed.Token, cookieByName(t, resp, RefreshTokenCookie), parsed.User.ID
	}

	t.Run("signup ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			data := `{"email": "user@example.com", "password": "StrongEnoughPassword"}`
			resp, body := do(t, "POST", env.url+"/api/signup", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var parsed struct {
				Token string `json:"token"`
				User  struct {
					ID    string `json:"id"`
					Email string `json:"email"`
					Role  string `json:"role"`
				} `json:"user"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &parsed))
			assert.NotEmpty(t, parsed.Token, "response should carry the access token")
			assert.Equal(t, "user@example.com", parsed.User.Email)
			assert.Equal(t, "REGISTERED", parsed.User.Role, "new accounts start as REGISTERED")

			claims, err := env.sessions.VerifyAccess(parsed.Token)
			require.NoError(t, err, "returned token should verify as access token")
			assert.Equal(t, models.RoleRegistered, claims.Role)

			require.Len(t, resp.Cookies(), 2, "both token cookies should be set")

			refreshCookie := cookieByName(t, resp, RefreshTokenCookie)
			assert.True(t, refreshCookie.HttpOnly, "refresh cookie should be HttpOnly")
			assert.Equal(t, "/", refreshCookie.Path)
			assert.Equal(t, http.SameSiteLaxMode, refreshCookie.SameSite)
			assert.InDelta(t, (7 * 24 * time.Hour).Seconds(), refreshCookie.MaxAge, 2, "refresh cookie max age should be refresh TTL")
			assert.NotEmpty(t, refreshCookie.Value)

			accessCookie := cookieByName(t, resp, middleware.AccessTokenCookie)
			assert.True(t, accessCookie.HttpOnly, "access cookie should be HttpOnly")
			assert.InDelta(t, (15 * time.Minute).Seconds(), accessCookie.MaxAge, 2, "access cookie max age should be access TTL")
			assert.Equal(t, parsed.Token, accessCookie.Value, "cookie and body should carry the same access token")
		})
	})

	t.Run("signup existed email fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			signup(t, env, "user@example.com")

			data := `{"email": "user@example.com", "password": "StrongEnoughPassword"}`
			resp, body := do(t, "POST", env.url+"/api/signup", data)

			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Email already in use."
				}`, body)
			require.Empty(t, resp.Cookies(), "no cookies should be set on signup error")
		})
	})

	t.Run("signup invalid payload fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			tests := []struct {
				name string
				data string
			}{
				{"not an email", `{"email": "not-an-email", "password": "StrongEnoughPassword"}`},
				{"short password", `{"email": "user@example.com", "password": "short"}`},
				{"empty body", `{}`},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					resp, body := do(t, "POST", env.url+"/api/signup", tt.data)

					require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
					require.Contains(t, body, "validation_failed")
				})
			}
		})
	})

	t.Run("login ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			signup(t, env, "user@example.com")

			data := `{"email": "user@example.com", "password": "StrongEnoughPassword"}`
			resp, body := do(t, "POST", env.url+"/api/login", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, `"token"`)
			require.Len(t, resp.Cookies(), 2)
		})
	})

	t.Run("login wrong password fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			signup(t, env, "user@example.com")

			data := `{"email": "user@example.com", "password": "WrongPassword"}`
			resp, body := do(t, "POST", env.url+"/api/login", data)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid credentials."
				}`, body)
			require.Empty(t, resp.Cookies())
		})
	})

	t.Run("login unknown email same error", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			data := `{"email": "nobody@example.com", "password": "StrongEnoughPassword"}`
			resp, body := do(t, "POST", env.url+"/api/login", data)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid credentials."
				}`, body, "unknown email must be indistinguishable from wrong password")
		})
	})

	t.Run("refresh token ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			firstAccess, firstRefresh, _ := signup(t, env, "user@example.com")

			resp, body := do(t, "POST", env.url+"/api/refresh-token", "",
				withCookie(RefreshTokenCookie, firstRefresh.Value))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			var parsed struct {
				AccessToken string `json:"accessToken"`
			}
			require.NoError(t, json.Unmarshal([]byte(body), &parsed))
			require.NotEmpty(t, parsed.AccessToken)
			require.NotEqual(t, firstAccess, parsed.AccessToken, "access token should change after refresh")

			secondRefresh := cookieByName(t, resp, RefreshTokenCookie)
			require.NotEqual(t, firstRefresh.Value, secondRefresh.Value, "refresh token should change after refresh")
		})
	})

	t.Run("refresh without cookie fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			resp, body := do(t, "POST", env.url+"/api/refresh-token", "")

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "No refresh token provided."
				}`, body)
		})
	})

	t.Run("refresh twice fails and clears cookies", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			_, refreshCookie, _ := signup(t, env, "user@example.com")

			resp, body := do(t, "POST", env.url+"/api/refresh-token", "",
				withCookie(RefreshTokenCookie, refreshCookie.Value))
			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)

			// Replay the already rotated token
			resp, body = do(t, "POST", env.url+"/api/refresh-token", "",
				withCookie(RefreshTokenCookie, refreshCookie.Value))

			require.Equalf(t, http.StatusForbidden, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid or expired refresh token. Please log in again."
				}`, body)

			for _, name := range []string{RefreshTokenCookie, middleware.AccessTokenCookie} {
				cookie := cookieByName(t, resp, name)
				require.Empty(t, cookie.Value, "cookie %q should be cleared", name)
				require.Equal(t, -1, cookie.MaxAge, "cookie %q should be expired", name)
			}
		})
	})

	t.Run("logout ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			_, refreshCookie, _ := signup(t, env, "user@example.com")

			resp, body := do(t, "POST", env.url+"/api/logout", "",
				withCookie(RefreshTokenCookie, refreshCookie.Value))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"message": "Logged out successfully."
				}`, body)

			for _, name := range []string{RefreshTokenCookie, middleware.AccessTokenCookie} {
				cookie := cookieByName(t, resp, name)
				require.Equal(t, -1, cookie.MaxAge, "cookie %q should be expired", name)
			}

			// The revoked session must not refresh anymore
			resp, body = do(t, "POST", env.url+"/api/refresh-token", "",
				withCookie(RefreshTokenCookie, refreshCookie.Value))
			require.Equalf(t, http.StatusForbidden, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("logout without cookie still ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			resp, body := do(t, "POST", env.url+"/api/logout", "")

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("me ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			access, _, userID := signup(t, env, "user@example.com")

			resp, body := do(t, "GET", env.url+"/api/me", "", withBearer(access))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, userID)
			require.Contains(t, body, "user@example.com")
		})
	})

	t.Run("me anonymous fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			resp, body := do(t, "GET", env.url+"/api/me", "")

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "You must be logged in."
				}`, body)
		})
	})

	t.Run("list users superadmin only", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			access, _, _ := signup(t, env, "user@example.com")

			resp, body := do(t, "GET", env.url+"/api/users", "", withBearer(access))

			require.Equalf(t, http.StatusForbidden, resp.StatusCode, "not expected code. Body: %s", body)

			// Promote and re-login: fresh tokens carry the new role
			admin, err := env.storage.User().GetUserByEmail(t.Context(), "user@example.com")
			require.NoError(t, err)
			role := models.RoleSuperadmin
			admin, err = env.storage.User().UpdateUser(t.Context(), admin.ID, repository.UpdateUserParams{Role: &role})
			require.NoError(t, err)
			pair, err := env.sessions.Issue(t.Context(), admin, models.RequestMeta{})
			require.NoError(t, err)

			resp, body = do(t, "GET", env.url+"/api/users", "", withBearer(pair.Access.Value))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, "user@example.com")
		})
	})

	t.Run("update own profile ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			access, _, userID := signup(t, env, "user@example.com")

			data := `{"email": "renamed@example.com"}`
			resp, body := do(t, "PATCH", env.url+"/api/users/"+userID, data, withBearer(access))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, "renamed@example.com")
		})
	})

	t.Run("update foreign profile fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			access, _, _ := signup(t, env, "user@example.com")
			_, _, otherID := signup(t, env, "other@example.com")

			data := `{"email": "hijacked@example.com"}`
			resp, body := do(t, "PATCH", env.url+"/api/users/"+otherID, data, withBearer(access))

			require.Equalf(t, http.StatusForbidden, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "You can only update your own profile."
				}`, body)
		})
	})

	t.Run("role change needs superadmin", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			access, _, userID := signup(t, env, "user@example.com")

			// Even on the own record a role change is off-limits
			data := `{"role": "SUPERADMIN"}`
			resp, body := do(t, "PATCH", env.url+"/api/users/"+userID, data, withBearer(access))

			require.Equalf(t, http.StatusForbidden, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Only superadmins can change user roles."
				}`, body)
		})
	})

	t.Run("update bad user id fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			access, _, _ := signup(t, env, "user@example.com")

			resp, body := do(t, "PATCH", env.url+"/api/users/not-a-uuid", `{"email": "x@example.com"}`, withBearer(access))

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("delete own profile ok", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			access, _, userID := signup(t, env, "user@example.com")

			resp, body := do(t, "DELETE", env.url+"/api/users/"+userID, "", withBearer(access))

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"message": "User deleted."
				}`, body)

			data := `{"email": "user@example.com", "password": "StrongEnoughPassword"}`
			resp, body = do(t, "POST", env.url+"/api/login", data)
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "deleted user should not log in. Body: %s", body)
		})
	})

	t.Run("password reset flow", func(t *testing.T) {
		linkRe := regexp.MustCompile(`token=([0-9a-f]+)&email=`)

		withServer(t, func(env testEnv) {
			_, refreshCookie, _ := signup(t, env, "user@example.com")

			// Request: generic answer, mail recorded
			data := `{"email": "user@example.com"}`
			resp, body := do(t, "POST", env.url+"/api/request-password-reset", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"message": "If your email exists, a password reset link has been sent."
				}`, body)
			require.Len(t, env.mailer.body, 1, "one mail should be recorded")

			match := linkRe.FindStringSubmatch(env.mailer.body[0])
			require.Len(t, match, 2, "mail should contain the raw reset token")
			rawToken := match[1]

			// Consume: password changes, sessions die
			data = fmt.Sprintf(`{"token": %q, "email": "user@example.com", "newPassword": "BrandNewPassword1"}`, rawToken)
			resp, body = do(t, "POST", env.url+"/api/reset-password", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"message": "Password reset successfully. Please log in with your new password."
				}`, body)

			resp, body = do(t, "POST", env.url+"/api/refresh-token", "",
				withCookie(RefreshTokenCookie, refreshCookie.Value))
			require.Equalf(t, http.StatusForbidden, resp.StatusCode, "old session should be revoked. Body: %s", body)

			resp, body = do(t, "POST", env.url+"/api/login", `{"email": "user@example.com", "password": "BrandNewPassword1"}`)
			require.Equalf(t, http.StatusOK, resp.StatusCode, "new password should log in. Body: %s", body)

			resp, body = do(t, "POST", env.url+"/api/login", `{"email": "user@example.com", "password": "StrongEnoughPassword"}`)
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "old password should be dead. Body: %s", body)
		})
	})

	t.Run("password reset unknown email same answer", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			data := `{"email": "nobody@example.com"}`
			resp, body := do(t, "POST", env.url+"/api/request-password-reset", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"message": "If your email exists, a password reset link has been sent."
				}`, body)
			require.Empty(t, env.mailer.body, "no mail for unknown email")
		})
	})

	t.Run("password reset bad token fails", func(t *testing.T) {
		withServer(t, func(env testEnv) {
			signup(t, env, "user@example.com")

			data := `{"token": "deadbeef", "email": "user@example.com", "newPassword": "BrandNewPassword1"}`
			resp, body := do(t, "POST", env.url+"/api/reset-password", data)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid or expired token. Please try again."
				}`, body)
		})
	})
}
