// Package access derives what an authenticated identity may read or write.
package access

import (
	"context"
	"fmt"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// Role is the organisational level of an identity.
type Role string

const (
	RoleHeadquarters Role = "headquarters"
	RoleBranch       Role = "branch"
	RoleStore        Role = "store"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleHeadquarters, RoleBranch, RoleStore:
		return true
	}
	return false
}

// Identity is an already-authenticated caller. It is rebuilt from the user
// record on every request and passed explicitly; nothing caches it.
type Identity struct {
	UserID   int64
	Role     Role
	BranchID *int64
	StoreID  *int64
}

// Validate checks the role/assignment shape: headquarters has neither id,
// branch has only branch_id, store has only store_id.
func (id Identity) Validate() error {
	switch id.Role {
	case RoleHeadquarters:
		if id.BranchID != nil || id.StoreID != nil {
			return fmt.Errorf("%w: headquarters identity carries an assignment", shared.ErrUnauthenticated)
		}
	case RoleBranch:
		if id.BranchID == nil || *id.BranchID <= 0 || id.StoreID != nil {
			return fmt.Errorf("%w: branch identity requires branch_id only", shared.ErrUnauthenticated)
		}
	case RoleStore:
		if id.StoreID == nil || *id.StoreID <= 0 || id.BranchID != nil {
			return fmt.Errorf("%w: store identity requires store_id only", shared.ErrUnauthenticated)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", shared.ErrUnauthenticated, id.Role)
	}
	return nil
}

type identityKey struct{}

// WithIdentity stores the identity of the current request in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the request identity, failing with ErrUnauthenticated
// when none was attached.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok {
		return Identity{}, shared.ErrUnauthenticated
	}
	return id, nil
}

// HeadquartersIdentity builds an unrestricted identity.
func HeadquartersIdentity(userID int64) Identity {
	return Identity{UserID: userID, Role: RoleHeadquarters}
}

// BranchIdentity builds an identity scoped to a branch.
func BranchIdentity(userID, branchID int64) Identity {
	return Identity{UserID: userID, Role: RoleBranch, BranchID: &branchID}
}

// StoreIdentity builds an identity scoped to a single store.
func StoreIdentity(userID, storeID int64) Identity {
	return Identity{UserID: userID, Role: RoleStore, StoreID: &storeID}
}
