// Package auth verifies who a chat connection acts as: it hashes and checks
// passwords, registers accounts and issues and validates bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/store"
	"github.com/google/uuid"
)

const (
	maxUsernameLength = 50
	minPasswordLength = 8
	maxPasswordLength = 72
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidUsername is returned when a username is empty, too long or contains whitespace.
	ErrInvalidUsername = errors.New("username must be 1-50 characters without spaces")
	// ErrInvalidEmail is returned when email format is invalid.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrWeakPassword is returned when password is too weak.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong is returned when password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

// UserStore is the user directory the service reads and writes.
type UserStore interface {
	Exists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user *store.User) error
	FindByID(ctx context.Context, id string) (*store.User, error)
	FindByUsername(ctx context.Context, username string) (*store.User, error)
}

// Session is returned by a successful login.
type Session struct {
	Token     string        `json:"token"`
	ExpiresIn int64         `json:"expiresIn"`
	User      chat.Identity `json:"user"`
}

// Service handles account registration, login and token verification.
type Service struct {
	users  UserStore
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewService creates a new Service.
func NewService(users UserStore, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, username, email, password string) (*store.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if len(password) > maxPasswordLength {
		return nil, ErrPasswordTooLong
	}

	exists, err := s.users.Exists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username existence: %w", err)
	}
	if exists {
		return nil, store.ErrUserExists
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (chat.Identity, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return chat.Identity{}, ErrInvalidCredentials
		}
		return chat.Identity{}, fmt.Errorf("failed to find user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return chat.Identity{}, ErrInvalidCredentials
	}
	return chat.Identity{UserID: user.ID, Username: user.Username}, nil
}

// IssueToken signs a bearer token for ident.
func (s *Service) IssueToken(ident chat.Identity) (string, error) {
	token, err := s.tokens.Generate(ident.UserID, ident.Username)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// Login authenticates a user and returns a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	ident, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	token, err := s.IssueToken(ident)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresIn: s.tokens.TTLSeconds(),
		User:      ident,
	}, nil
}

// VerifyToken validates a bearer token and confirms its user still exists.
func (s *Service) VerifyToken(ctx context.Context, token string) (chat.Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return chat.Identity{}, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return chat.Identity{}, ErrInvalidToken
		}
		return chat.Identity{}, fmt.Errorf("failed to find user: %w", err)
	}
	return chat.Identity{UserID: user.ID, Username: user.Username}, nil
}

func validateUsername(username string) error {
	if username == "" || len(username) > maxUsernameLength {
		return ErrInvalidUsername
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return ErrInvalidUsername
	}
	return nil
}
