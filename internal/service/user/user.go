package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ndenisov/accounts/internal/apperrors"
	"github.com/ndenisov/accounts/internal/models"
	"github.com/ndenisov/accounts/internal/repository"
	"github.com/ndenisov/accounts/internal/service/auth"
)

// Compared against when the email is unknown, so login takes the same time
// whether or not the account exists
var enumerationDecoy = func() string {
	hash, err := auth.DefaultHasher.Hash("enumeration-resistance-decoy")
	if err != nil {
		panic(err)
	}
	return hash
}()

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
	}
}

// Register creates a user with the REGISTERED role
// Returns apperrors.ErrUserAlreadyExists if the email is taken
func (s *UserService) Register(ctx context.Context, email string, password string) (models.User, error) {
	var user models.User

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleRegistered,
	})
	if err != nil {
		return user, err
	}

	return user, nil
}

// Authenticate checks the credential pair
// Returns apperrors.ErrInvalidCredentials on any failure without revealing
// whether the email or the password was wrong
func (s *UserService) Authenticate(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.hasher.Verify(password, enumerationDecoy)
		return models.User{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, err
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		return models.User{}, apperrors.ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.storage.User().ListUsers(ctx)
}

// Update changes email and/or role; nil fields stay as stored
func (s *UserService) Update(ctx context.Context, id uuid.UUID, email *string, role *models.Role) (models.User, error) {
	if role != nil && !role.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown role %q", apperrors.ErrForbidden, *role)
	}

	return s.storage.User().UpdateUser(ctx, id, repository.UpdateUserParams{
		Email: email,
		Role:  role,
	})
}

// Delete removes the user together with every session and reset grant
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.storage.InTx(ctx, func(st repository.Storage) error {
		if err := st.Refresh().DeleteForUser(ctx, id); err != nil {
			return err
		}
		return st.User().DeleteUser(ctx, id)
	})
}
