package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// CreateUser stores a user; emails are unique case-insensitively.
func (s *Store) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.User{}, fmt.Errorf("%w: user %s already exists", shared.ErrConflict, u.Email)
		}
	}
	s.nextUser++
	now := s.now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = s.nextUser, now, now
	s.users[u.ID] = u
	return u, nil
}

// UpdateUser replaces a user record.
func (s *Store) UpdateUser(_ context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("%w: user %d", shared.ErrNotFound, u.ID)
	}
	u.UpdatedAt = s.now().UTC()
	s.users[u.ID] = u
	return nil
}

// FindByEmail implements auth.Repository.
func (s *Store) FindByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, fmt.Errorf("%w: user %s", shared.ErrNotFound, email)
}

// FindByID implements auth.Repository.
func (s *Store) FindByID(_ context.Context, id int64) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return u, nil
}

// CreateSession implements auth.Repository.
func (s *Store) CreateSession(_ context.Context, id string, userID int64, _ time.Time, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = userID
	return nil
}

// DeleteSession implements auth.Repository.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
