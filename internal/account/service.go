//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=mocks/mock_user_repository.go -package=mocks
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tyrowin/groupchat/internal/store"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidInput       = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

var validate = validator.New()

// Credentials is the body of register and login requests.
type Credentials struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=72"`
}

type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (store.User, error)
	FindUserByUsername(ctx context.Context, username string) (store.User, error)
}

type Service struct {
	repo   UserRepository
	hasher *PasswordHasher
}

func NewService(repo UserRepository, hasher *PasswordHasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// Register creates a user. A taken username surfaces as store.ErrUsernameTaken.
func (s *Service) Register(ctx context.Context, creds Credentials) (store.User, error) {
	if err := validate.Struct(creds); err != nil {
		return store.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return store.User{}, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, creds.Username, hash)
}

// Login returns the user whose credentials match. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, creds Credentials) (store.User, error) {
	if err := validate.Struct(creds); err != nil {
		return store.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := s.repo.FindUserByUsername(ctx, creds.Username)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, err
	}
	if !s.hasher.Verify(creds.Password, user.PasswordHash) {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}
