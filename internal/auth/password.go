package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"proxy_manager/internal/access"
	"proxy_manager/internal/apperr"
	"proxy_manager/internal/model"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password
var ErrInvalidCredentials = errors.New("invalid username or password")

// HashPassword hashes a plain text password using bcrypt
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword compares a bcrypt hashed password with a plain text password
func ComparePassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// UserStore is the persistence Service needs
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
}

// LoginResult is returned by a successful Login
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires"`
	User      *model.User `json:"user"`
}

// Service authenticates users and issues tokens
type Service struct {
	users  UserStore
	tokens *Tokens
	logger *logrus.Entry
}

// NewService creates an auth Service
func NewService(users UserStore, tokens *Tokens, logger *logrus.Entry) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Login checks the password of username and issues a token
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Generate(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("username", user.Username).Info("user logged in")
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// EnsureAdmin creates the administrator account when it does not exist yet.
// An empty password skips the bootstrap.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if password == "" {
		return nil
	}
	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !apperr.IsKind(err, apperr.KindNotFound) {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         string(access.RoleAdmin),
		Status:       model.UserStatusActive,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return err
	}
	s.logger.WithField("username", username).Info("created admin user")
	return nil
}
