// Package org models the headquarters → branch → store hierarchy.
package org

import (
	"context"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/access"
)

// Branch groups stores under one manager.
type Branch struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ManagerName string    `json:"manager_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store belongs to exactly one branch at any time.
type Store struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branch_id"`
	Name      string    `json:"name"`
	OwnerName string    `json:"owner_name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreGoal is the monthly activation target of a store. Month is YYYY-MM.
type StoreGoal struct {
	StoreID      int64  `json:"store_id"`
	Month        string `json:"month"`
	TargetCount  int64  `json:"target_count"`
	TargetAmount int64  `json:"target_amount"`
}

// BranchInput is the create/update payload of a branch.
type BranchInput struct {
	Code        string `json:"code" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=120"`
	ManagerName string `json:"manager_name" validate:"max=120"`
}

// StoreInput is the create/update payload of a store. BranchID is optional on
// update and defaults to the caller's branch on create.
type StoreInput struct {
	BranchID  *int64 `json:"branch_id" validate:"omitempty,gt=0"`
	Name      string `json:"name" validate:"required,max=120"`
	OwnerName string `json:"owner_name" validate:"max=120"`
	Phone     string `json:"phone" validate:"max=32"`
}

// GoalInput sets the targets of one store-month.
type GoalInput struct {
	TargetCount  int64 `json:"target_count" validate:"gte=0"`
	TargetAmount int64 `json:"target_amount" validate:"gte=0"`
}

// Repository persists the hierarchy. Lookups of unknown ids return
// shared.ErrNotFound; a duplicate branch code returns shared.ErrConflict.
type Repository interface {
	access.StoreLocator

	ListBranches(ctx context.Context, ids []int64) ([]Branch, error)
	GetBranch(ctx context.Context, id int64) (Branch, error)
	CreateBranch(ctx context.Context, b Branch) (Branch, error)
	UpdateBranch(ctx context.Context, b Branch) (Branch, error)

	ListStores(ctx context.Context, filter access.Filter) ([]Store, error)
	GetStore(ctx context.Context, id int64) (Store, error)
	CreateStore(ctx context.Context, s Store) (Store, error)
	UpdateStore(ctx context.Context, s Store) (Store, error)

	UpsertGoal(ctx context.Context, g StoreGoal) (StoreGoal, error)
	ListGoals(ctx context.Context, filter access.Filter, months []string) ([]StoreGoal, error)
}
