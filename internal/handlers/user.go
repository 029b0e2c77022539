package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/handlers/render"
	"github.com/ndenisov/accounts/internal/handlers/userctx"
	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/models"
)

func handleUserMe(users userService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "You must be logged in.", http.StatusUnauthorized)
			return
		}

		// Read back from storage so a concurrent update is not masked by the
		// token's snapshot of the user
		user, err := users.Get(r.Context(), actor.ID)
		if err != nil {
			render.ServiceError(w, "User not found.", http.StatusNotFound)
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}

func handleListUsers(users userService, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "You must be logged in.", http.StatusUnauthorized)
			return
		}
		if !actor.Role.AtLeast(models.RoleSuperadmin) {
			render.ServiceError(w, "You do not have permission to view all users.", http.StatusForbidden)
			return
		}

		list, err := users.List(r.Context())
		if err != nil {
			log.Error("user listing failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]userResponse, 0, len(list))
		for _, u := range list {
			resp = append(resp, toUserResponse(u))
		}
		render.JSON(w, resp)
	})
}

func handleUpdateUser(users userService, log logger.Logger) http.Handler {
	type request struct {
		Email *string      `json:"email" validate:"omitempty,email"`
		Role  *models.Role `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "You must be logged in.", http.StatusUnauthorized)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid user id.", http.StatusBadRequest)
			return
		}

		// Users touch their own record; SUPERADMIN touches anyone's
		if actor.ID != id && !actor.Role.AtLeast(models.RoleSuperadmin) {
			render.ServiceError(w, "You can only update your own profile.", http.StatusForbidden)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Role changes are a SUPERADMIN-only privilege, even on own record
		if data.Role != nil && !actor.Role.AtLeast(models.RoleSuperadmin) {
			render.ServiceError(w, "Only superadmins can change user roles.", http.StatusForbidden)
			return
		}

		user, err := users.Update(r.Context(), id, data.Email, data.Role)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found.", http.StatusNotFound)
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "Email already in use.", http.StatusConflict)
			case errors.Is(err, apperrors.ErrForbidden):
				render.ServiceError(w, "Unknown role.", http.StatusBadRequest)
			default:
				log.Error("user update failed", "user_id", id, "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, toUserResponse(user))
	})
}

func handleDeleteUser(users userService, log logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "You must be logged in.", http.StatusUnauthorized)
			return
		}

		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid user id.", http.StatusBadRequest)
			return
		}

		if actor.ID != id && !actor.Role.AtLeast(models.RoleSuperadmin) {
			render.ServiceError(w, "You can only delete your own profile.", http.StatusForbidden)
			return
		}

		if err := users.Delete(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found.", http.StatusNotFound)
			default:
				log.Error("user delete failed", "user_id", id, "error", err.Error())
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, response{Message: "User deleted."})
	})
}
