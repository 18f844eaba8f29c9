package org

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// Service applies scope rules to hierarchy reads and writes.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: httpx.NewValidator(), logger: logger}
}

// Locator exposes the store → branch lookup used by scope narrowing.
func (s *Service) Locator() access.StoreLocator {
	return s.repo
}

// ListBranches returns every branch for headquarters and the caller's own
// branch otherwise.
func (s *Service) ListBranches(ctx context.Context, id access.Identity) ([]Branch, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return nil, err
	}
	switch scope.Kind() {
	case access.Unrestricted:
		return s.repo.ListBranches(ctx, nil)
	case access.BranchScoped:
		b, _ := scope.BranchID()
		return s.repo.ListBranches(ctx, []int64{b})
	default:
		storeID, _ := scope.StoreID()
		branches, err := s.repo.StoreBranches(ctx, []int64{storeID})
		if err != nil {
			return nil, err
		}
		b, ok := branches[storeID]
		if !ok {
			return []Branch{}, nil
		}
		return s.repo.ListBranches(ctx, []int64{b})
	}
}

// ListStores returns stores in scope, optionally narrowed to one branch.
func (s *Service) ListStores(ctx context.Context, id access.Identity, branchID *int64) ([]Store, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return nil, err
	}
	filter, err := scope.Narrow(ctx, s.repo, access.Request{BranchID: branchID})
	if err != nil {
		return nil, err
	}
	return s.repo.ListStores(ctx, filter)
}

// AccessibleStoreIDs returns the sorted ids of every store in scope.
func (s *Service) AccessibleStoreIDs(ctx context.Context, id access.Identity) ([]int64, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return nil, err
	}
	stores, err := s.repo.ListStores(ctx, scope.Filter())
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(stores))
	for _, st := range stores {
		ids = append(ids, st.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CreateBranch is restricted to headquarters.
func (s *Service) CreateBranch(ctx context.Context, id access.Identity, in BranchInput) (Branch, error) {
	if err := requireHeadquarters(id, "create branches"); err != nil {
		return Branch{}, err
	}
	in = normalizeBranch(in)
	if err := httpx.Validate(s.validate, in); err != nil {
		return Branch{}, err
	}
	created, err := s.repo.CreateBranch(ctx, Branch{Code: in.Code, Name: in.Name, ManagerName: in.ManagerName})
	if err != nil {
		return Branch{}, err
	}
	s.logger.Info("branch created", slog.Int64("branch_id", created.ID), slog.String("code", created.Code), slog.Int64("actor_id", id.UserID))
	return created, nil
}

// UpdateBranch is restricted to headquarters.
func (s *Service) UpdateBranch(ctx context.Context, id access.Identity, branchID int64, in BranchInput) (Branch, error) {
	if err := requireHeadquarters(id, "edit branches"); err != nil {
		return Branch{}, err
	}
	in = normalizeBranch(in)
	if err := httpx.Validate(s.validate, in); err != nil {
		return Branch{}, err
	}
	current, err := s.repo.GetBranch(ctx, branchID)
	if err != nil {
		return Branch{}, err
	}
	current.Code, current.Name, current.ManagerName = in.Code, in.Name, in.ManagerName
	return s.repo.UpdateBranch(ctx, current)
}

// CreateStore lets headquarters create a store under any branch and a branch
// identity under its own branch.
func (s *Service) CreateStore(ctx context.Context, id access.Identity, in StoreInput) (Store, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return Store{}, err
	}
	in = normalizeStore(in)
	if err := httpx.Validate(s.validate, in); err != nil {
		return Store{}, err
	}

	var branchID int64
	switch scope.Kind() {
	case access.Unrestricted:
		if in.BranchID == nil {
			return Store{}, shared.FieldErrors{"branch_id": "is required"}
		}
		branchID = *in.BranchID
	case access.BranchScoped:
		own, _ := scope.BranchID()
		if in.BranchID != nil && *in.BranchID != own {
			return Store{}, shared.Scopef("branch %d is outside your scope", *in.BranchID)
		}
		branchID = own
	default:
		return Store{}, shared.Scopef("store accounts cannot create stores")
	}
	if err := s.requireBranch(ctx, branchID); err != nil {
		return Store{}, err
	}

	created, err := s.repo.CreateStore(ctx, Store{BranchID: branchID, Name: in.Name, OwnerName: in.OwnerName, Phone: in.Phone})
	if err != nil {
		return Store{}, err
	}
	s.logger.Info("store created", slog.Int64("store_id", created.ID), slog.Int64("branch_id", branchID), slog.Int64("actor_id", id.UserID))
	return created, nil
}

// UpdateStore edits store details. Only headquarters may move a store to
// another branch.
func (s *Service) UpdateStore(ctx context.Context, id access.Identity, storeID int64, in StoreInput) (Store, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return Store{}, err
	}
	if scope.Kind() == access.StoreScoped {
		return Store{}, shared.Scopef("store accounts cannot edit stores")
	}
	in = normalizeStore(in)
	if err := httpx.Validate(s.validate, in); err != nil {
		return Store{}, err
	}
	if _, err := scope.PermitsStore(ctx, s.repo, storeID); err != nil {
		return Store{}, err
	}
	current, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return Store{}, err
	}

	if in.BranchID != nil && *in.BranchID != current.BranchID {
		if scope.Kind() != access.Unrestricted {
			return Store{}, shared.Scopef("only headquarters can move a store to another branch")
		}
		if err := s.requireBranch(ctx, *in.BranchID); err != nil {
			return Store{}, err
		}
		s.logger.Info("store moved",
			slog.Int64("store_id", storeID),
			slog.Int64("from_branch_id", current.BranchID),
			slog.Int64("to_branch_id", *in.BranchID),
			slog.Int64("actor_id", id.UserID))
		current.BranchID = *in.BranchID
	}
	current.Name, current.OwnerName, current.Phone = in.Name, in.OwnerName, in.Phone
	return s.repo.UpdateStore(ctx, current)
}

// SetGoal stores the monthly targets of a store. Headquarters or the owning
// branch may set them.
func (s *Service) SetGoal(ctx context.Context, id access.Identity, storeID int64, month string, in GoalInput) (StoreGoal, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return StoreGoal{}, err
	}
	if scope.Kind() == access.StoreScoped {
		return StoreGoal{}, shared.Scopef("store accounts cannot set goals")
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return StoreGoal{}, shared.FieldErrors{"month": "must match YYYY-MM"}
	}
	if err := httpx.Validate(s.validate, in); err != nil {
		return StoreGoal{}, err
	}
	if _, err := scope.PermitsStore(ctx, s.repo, storeID); err != nil {
		return StoreGoal{}, err
	}
	return s.repo.UpsertGoal(ctx, StoreGoal{
		StoreID:      storeID,
		Month:        month,
		TargetCount:  in.TargetCount,
		TargetAmount: in.TargetAmount,
	})
}

func (s *Service) requireBranch(ctx context.Context, branchID int64) error {
	if _, err := s.repo.GetBranch(ctx, branchID); err != nil {
		if shared.IsNotFound(err) {
			return shared.FieldErrors{"branch_id": fmt.Sprintf("branch %d does not exist", branchID)}
		}
		return err
	}
	return nil
}

func requireHeadquarters(id access.Identity, action string) error {
	scope, err := access.Resolve(id)
	if err != nil {
		return err
	}
	if scope.Kind() != access.Unrestricted {
		return shared.Scopef("only headquarters can %s", action)
	}
	return nil
}

func normalizeBranch(in BranchInput) BranchInput {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.ManagerName = strings.TrimSpace(in.ManagerName)
	return in
}

func normalizeStore(in StoreInput) StoreInput {
	in.Name = strings.TrimSpace(in.Name)
	in.OwnerName = strings.TrimSpace(in.OwnerName)
	in.Phone = strings.TrimSpace(in.Phone)
	return in
}
