package service

import (
	"context"
	"errors"

	"github.com/pkazancev/task-tracker-api/internal/auth"
	"github.com/pkazancev/task-tracker-api/internal/model"
	"github.com/pkazancev/task-tracker-api/internal/repo"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type AuthService struct {
	users  repo.UserRepository
	tokens *auth.TokenService
	hasher auth.PasswordHasher
}

func NewAuthService(users repo.UserRepository, tokens *auth.TokenService, hasher auth.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
	}
}

// Signup stores the user with a hashed password and issues a token for the
// new account. The raw password never reaches the repository.
func (s *AuthService) Signup(ctx context.Context, email, password string) (model.User, string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.User{}, "", err
	}

	user, err := s.users.Create(ctx, model.User{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, repo.ErrorConflict) {
			return model.User{}, "", ErrEmailTaken
		}
		return model.User{}, "", err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return model.User{}, "", err
	}
	return user, token, nil
}

// Login verifies the credentials and issues a token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrorNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	return s.tokens.Issue(user.ID)
}
