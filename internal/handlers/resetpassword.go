package handlers

import (
	"errors"
	"net/http"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/handlers/render"
	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/service/reset"
)

func handleRequestPasswordReset(resets resetService, log logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := resets.Request(r.Context(), data.Email); err != nil {
			log.Error("password reset request failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Identical body for existing and unknown emails
		render.JSON(w, response{Message: reset.GenericMessage})
	})
}

func handleResetPassword(resets resetService, log logger.Logger) http.Handler {
	type request struct {
		Token       string `json:"token" validate:"required"`
		Email       string `json:"email" validate:"required,email"`
		NewPassword string `json:"newPassword" validate:"required,min=8"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		err = resets.Consume(r.Context(), data.Token, data.Email, data.NewPassword)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrResetTokenInvalid):
				// One message for every invalid-token cause
				render.ServiceError(w, "Invalid or expired token. Please try again.", http.StatusBadRequest)
			default:
				log.Error("password reset failed", "error", err.Error())
				render.ServiceError(w, "An error occurred during password reset.", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{Message: "Password reset successfully. Please log in with your new password."})
	})
}
