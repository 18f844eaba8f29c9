package auth

import (
	"context"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/access"
)

// User represents an account. Role and assignment are read on every request
// so a reassignment takes effect immediately.
type User struct {
	ID           int64       `json:"id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	PasswordHash string      `json:"-"`
	Role         access.Role `json:"role"`
	BranchID     *int64      `json:"branch_id,omitempty"`
	StoreID      *int64      `json:"store_id,omitempty"`
	IsActive     bool        `json:"is_active"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Identity projects the user onto the identity used by scope resolution.
func (u User) Identity() access.Identity {
	return access.Identity{UserID: u.ID, Role: u.Role, BranchID: u.BranchID, StoreID: u.StoreID}
}

// Repository defines persistence operations for the auth module. Unknown
// users yield shared.ErrNotFound.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}
