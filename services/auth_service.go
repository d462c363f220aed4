//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"fmt"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IAuthService interface {
	Register(name, email, password string) (Token, domain.User, error)
	Login(email, password string) (Token, domain.User, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         auth.Tokens
}

type Token string

func NewAuthService(repo repositories.IUserRepository, tokens auth.Tokens) IAuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(name, email, password string) (Token, domain.User, error) {
	valReq := auth.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: password,
	}

	// Validate business rules before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", domain.User{}, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}

	// Hashing happens in the service layer to keep the repository unaware of
	// plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(name, email, hashedPassword)
	if err != nil {
		return "", domain.User{}, err // propagates ErrUserAlreadyExists
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}
	return Token(token), user, nil
}

func (s *AuthService) Login(email, password string) (Token, domain.User, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	switch {
	case err == errors.ErrUserNotFound:
		// Generic error to prevent user enumeration attacks
		return "", domain.User{}, errors.ErrInvalidCredentials
	case err != nil:
		return "", domain.User{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}
	return Token(token), user, nil
}
