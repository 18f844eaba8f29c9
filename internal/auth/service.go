package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if shared.IsNotFound(err) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if !user.IsActive {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	if err := user.Identity().Validate(); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Identify rebuilds the identity of userID from its current record.
func (s *Service) Identify(ctx context.Context, userID int64) (access.Identity, error) {
	if userID <= 0 {
		return access.Identity{}, shared.ErrUnauthenticated
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return access.Identity{}, shared.ErrUnauthenticated
		}
		return access.Identity{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.IsActive {
		return access.Identity{}, fmt.Errorf("%w: account disabled", shared.ErrUnauthenticated)
	}
	id := user.Identity()
	if err := id.Validate(); err != nil {
		return access.Identity{}, err
	}
	return id, nil
}

// Profile returns the user record behind an identity.
func (s *Service) Profile(ctx context.Context, userID int64) (User, error) {
	return s.repo.FindByID(ctx, userID)
}

// RegisterSession persists the session metadata.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
