package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/handlers/render"
	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/models"
)

type userResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func handleSignup(users userService, sessions sessionService, cookies CookieConfig, log logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := users.Register(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "Email already in use.", http.StatusConflict)
			default:
				log.Error("signup failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		pair, err := sessions.Issue(r.Context(), user, requestMeta(r))
		if err != nil {
			log.Error("session issue failed after signup", "user_id", user.ID, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		setSessionCookies(w, pair, cookies)
		render.JSON(w, authResponse{Token: pair.Access.Value, User: toUserResponse(user)})
	})
}

func handleLogin(users userService, sessions sessionService, cookies CookieConfig, log logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, err := users.Authenticate(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				// Deliberately uninformative: never reveal which factor failed
				render.ServiceError(w, "Invalid credentials.", http.StatusUnauthorized)
			default:
				log.Error("login failed", "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		pair, err := sessions.Issue(r.Context(), user, requestMeta(r))
		if err != nil {
			log.Error("session issue failed after login", "user_id", user.ID, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		setSessionCookies(w, pair, cookies)
		render.JSON(w, authResponse{Token: pair.Access.Value, User: toUserResponse(user)})
	})
}

func handleTokenRefresh(sessions sessionService, cookies CookieConfig, log logger.Logger) http.Handler {
	type response struct {
		AccessToken string `json:"accessToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := refreshTokenFromRequest(r)
		if raw == "" {
			render.ServiceError(w, "No refresh token provided.", http.StatusUnauthorized)
			return
		}

		pair, err := sessions.Rotate(r.Context(), raw, requestMeta(r))
		if err != nil {
			// Any rotation failure ends the browser session: the cookie is
			// cleared and the client is told to log in again, nothing more
			log.Warn("refresh token rejected", "error", err.Error())
			clearSessionCookies(w, cookies)
			render.ServiceError(w, "Invalid or expired refresh token. Please log in again.", http.StatusForbidden)
			return
		}

		setSessionCookies(w, pair, cookies)
		render.JSON(w, response{AccessToken: pair.Access.Value})
	})
}

func handleLogout(sessions sessionService, cookies CookieConfig) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := refreshTokenFromRequest(r); raw != "" {
			sessions.End(r.Context(), raw)
		}

		clearSessionCookies(w, cookies)
		render.JSON(w, response{Message: "Logged out successfully."})
	})
}
