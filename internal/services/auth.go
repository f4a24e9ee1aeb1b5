package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"todo-api/internal/auth"
	"todo-api/internal/models"
	"todo-api/internal/repositories"

	"github.com/gofrs/uuid"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, id uuid.UUID, columns map[string]interface{}) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
	Burn(plaintext string)
}

type TokenIssuer interface {
	Issue(subject uuid.UUID) (string, error)
}

// TaskEvictor drops cached copies of tasks removed outside the task service.
type TaskEvictor interface {
	Forget(ctx context.Context, ids []uuid.UUID)
}

type AuthService struct {
	users   UserStore
	hasher  PasswordHasher
	tokens  TokenIssuer
	evictor TaskEvictor
	log     *slog.Logger
}

func NewAuthService(users UserStore, hasher PasswordHasher, tokens TokenIssuer, evictor TaskEvictor, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		evictor: evictor,
		log:     log,
	}
}

func validateCredentials(email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return newError(ErrBadRequest, "email and password are required")
	}
	if len(password) > auth.MaxPasswordLength {
		return newError(ErrBadRequest, "password must be at most 72 bytes")
	}
	return nil
}

// Register creates an account. Emails are compared exactly as given.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	const op = "services.AuthService.Register"

	log := s.log.With(slog.String("op", op))

	if err := validateCredentials(email, password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s: %w", op, newError(ErrConflict, "user already exists"))
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, internalError(op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError(op, err)
	}

	user := &models.User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%s: %w", op, newError(ErrConflict, "user already exists"))
		}
		return nil, internalError(op, err)
	}

	log.Info("user registered", slog.String("user_id", user.ID.String()))

	return user, nil
}

// Login returns a signed token. An unknown email and a wrong password produce
// the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	const op = "services.AuthService.Login"

	invalid := newError(ErrUnauthorized, "invalid credentials")

	if err := validateCredentials(email, password); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.hasher.Burn(password)
			return "", fmt.Errorf("%s: %w", op, invalid)
		}
		return "", internalError(op, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", fmt.Errorf("%s: %w", op, invalid)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", internalError(op, err)
	}

	return token, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "services.AuthService.ListUsers"

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, internalError(op, err)
	}
	return users, nil
}

// UpdateUser applies a partial edit. An empty email or password counts as not
// provided and leaves the field as it is. Any failure, including an unknown id
// or an email already in use, is reported as a bad request.
func (s *AuthService) UpdateUser(ctx context.Context, id uuid.UUID, update models.UserUpdate) (*models.User, error) {
	const op = "services.AuthService.UpdateUser"

	failed := newError(ErrBadRequest, "error updating user")
	columns := make(map[string]interface{}, 2)

	if update.Email != nil && *update.Email != "" {
		if strings.TrimSpace(*update.Email) == "" {
			return nil, fmt.Errorf("%s: %w", op, newError(ErrBadRequest, "email must not be empty"))
		}
		columns["email"] = *update.Email
	}

	if update.Password != nil && *update.Password != "" {
		if len(*update.Password) > auth.MaxPasswordLength {
			return nil, fmt.Errorf("%s: %w", op, newError(ErrBadRequest, "password must be at most 72 bytes"))
		}
		hash, err := s.hasher.Hash(*update.Password)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, failed, err)
		}
		columns["password_hash"] = hash
	}

	user, err := s.users.Update(ctx, id, columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, failed, err)
	}

	return user, nil
}

// DeleteUser removes the user together with the tasks it owns.
func (s *AuthService) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "services.AuthService.DeleteUser"

	taskIDs, err := s.users.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, newError(ErrBadRequest, "error deleting user"), err)
	}

	if s.evictor != nil {
		s.evictor.Forget(ctx, taskIDs)
	}

	s.log.Info("user deleted",
		slog.String("op", op),
		slog.String("user_id", id.String()),
		slog.Int("tasks_removed", len(taskIDs)))

	return nil
}
