package access

import (
	"context"
	"fmt"

	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// Kind enumerates the three scope shapes.
type Kind int

const (
	Unrestricted Kind = iota + 1
	BranchScoped
	StoreScoped
)

func (k Kind) String() string {
	switch k {
	case Unrestricted:
		return "all"
	case BranchScoped:
		return "branch"
	case StoreScoped:
		return "store"
	}
	return "none"
}

// Scope is the set of stores an identity may read or write.
type Scope struct {
	kind     Kind
	branchID int64
	storeID  int64
}

// StoreLocator maps store ids to their current branch id. Unknown ids are
// simply absent from the result.
type StoreLocator interface {
	StoreBranches(ctx context.Context, storeIDs []int64) (map[int64]int64, error)
}

// Resolve derives the scope of id. It is cheap and must be called per request.
func Resolve(id Identity) (Scope, error) {
	if err := id.Validate(); err != nil {
		return Scope{}, err
	}
	switch id.Role {
	case RoleBranch:
		return Scope{kind: BranchScoped, branchID: *id.BranchID}, nil
	case RoleStore:
		return Scope{kind: StoreScoped, storeID: *id.StoreID}, nil
	default:
		return Scope{kind: Unrestricted}, nil
	}
}

// Kind returns the scope shape.
func (s Scope) Kind() Kind { return s.kind }

// BranchID returns the branch of a branch scope.
func (s Scope) BranchID() (int64, bool) {
	return s.branchID, s.kind == BranchScoped
}

// StoreID returns the store of a store scope.
func (s Scope) StoreID() (int64, bool) {
	return s.storeID, s.kind == StoreScoped
}

// Permits reports whether a store currently assigned to branchID is in scope.
func (s Scope) Permits(storeID, branchID int64) bool {
	switch s.kind {
	case Unrestricted:
		return true
	case BranchScoped:
		return branchID == s.branchID
	case StoreScoped:
		return storeID == s.storeID
	}
	return false
}

// PermitsStore locates storeID and checks it against the scope. Unknown
// stores are reported as NotFound to headquarters and as a scope violation
// to everyone else so foreign ids are not probed.
func (s Scope) PermitsStore(ctx context.Context, loc StoreLocator, storeID int64) (int64, error) {
	branches, err := loc.StoreBranches(ctx, []int64{storeID})
	if err != nil {
		return 0, err
	}
	branchID, ok := branches[storeID]
	if !ok {
		if s.kind == Unrestricted {
			return 0, fmt.Errorf("%w: store %d", shared.ErrNotFound, storeID)
		}
		return 0, shared.Scopef("store %d is outside your scope", storeID)
	}
	if !s.Permits(storeID, branchID) {
		return 0, shared.Scopef("store %d is outside your scope", storeID)
	}
	return branchID, nil
}

// Request carries the optional explicit filters a caller supplied.
type Request struct {
	StoreID  *int64
	BranchID *int64
}

// Filter is a scope applied to a query. It can only be produced by a Scope,
// so a zero Filter never matches anything.
type Filter struct {
	valid    bool
	storeID  *int64
	branchID *int64
}

// Valid reports whether the filter came from a Scope.
func (f Filter) Valid() bool { return f.valid }

// StoreID returns the store restriction, if any.
func (f Filter) StoreID() (int64, bool) {
	if f.storeID == nil {
		return 0, false
	}
	return *f.storeID, true
}

// BranchID returns the branch restriction, if any.
func (f Filter) BranchID() (int64, bool) {
	if f.branchID == nil {
		return 0, false
	}
	return *f.branchID, true
}

// Restricted reports whether the filter narrows the data set at all.
func (f Filter) Restricted() bool {
	return f.storeID != nil || f.branchID != nil
}

// Matches reports whether a record of storeID/branchID passes the filter.
func (f Filter) Matches(storeID, branchID int64) bool {
	if !f.valid {
		return false
	}
	if f.storeID != nil && *f.storeID != storeID {
		return false
	}
	if f.branchID != nil && *f.branchID != branchID {
		return false
	}
	return true
}

// Filter returns the scope's own filter without explicit narrowing.
func (s Scope) Filter() Filter {
	switch s.kind {
	case Unrestricted:
		return Filter{valid: true}
	case BranchScoped:
		b := s.branchID
		return Filter{valid: true, branchID: &b}
	case StoreScoped:
		st := s.storeID
		return Filter{valid: true, storeID: &st}
	}
	return Filter{}
}

// Narrow combines the scope with explicit caller filters. A contradicting
// explicit filter fails with ErrScopeViolation instead of being replaced by
// the caller's own scope; only an omitted store_id of a store identity is
// filled with its own store.
func (s Scope) Narrow(ctx context.Context, loc StoreLocator, req Request) (Filter, error) {
	if req.StoreID != nil && *req.StoreID <= 0 {
		return Filter{}, shared.Validationf("store_id must be positive")
	}
	if req.BranchID != nil && *req.BranchID <= 0 {
		return Filter{}, shared.Validationf("branch_id must be positive")
	}

	switch s.kind {
	case Unrestricted:
		return Filter{valid: true, storeID: req.StoreID, branchID: req.BranchID}, nil

	case BranchScoped:
		if req.BranchID != nil && *req.BranchID != s.branchID {
			return Filter{}, shared.Scopef("branch %d is outside your scope", *req.BranchID)
		}
		if req.StoreID != nil {
			if _, err := s.PermitsStore(ctx, loc, *req.StoreID); err != nil {
				return Filter{}, err
			}
		}
		b := s.branchID
		return Filter{valid: true, branchID: &b, storeID: req.StoreID}, nil

	case StoreScoped:
		if req.StoreID != nil && *req.StoreID != s.storeID {
			return Filter{}, shared.Scopef("store %d is outside your scope", *req.StoreID)
		}
		if req.BranchID != nil {
			branches, err := loc.StoreBranches(ctx, []int64{s.storeID})
			if err != nil {
				return Filter{}, err
			}
			if own, ok := branches[s.storeID]; !ok || own != *req.BranchID {
				return Filter{}, shared.Scopef("branch %d is outside your scope", *req.BranchID)
			}
		}
		st := s.storeID
		return Filter{valid: true, storeID: &st}, nil
	}
	return Filter{}, shared.ErrUnauthenticated
}
