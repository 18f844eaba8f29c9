package org_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/shared"
	"github.com/mobilenet-retail/backoffice/internal/store/memory"
)

type orgFixture struct {
	svc     *org.Service
	branchA org.Branch
	branchB org.Branch
	storeA  org.Store
	storeB  org.Store
}

func newOrgFixture(t *testing.T) *orgFixture {
	t.Helper()
	ctx := context.Background()
	svc := org.NewService(memory.New(time.Now), nil)
	hq := access.HeadquartersIdentity(1)

	f := &orgFixture{svc: svc}
	var err error
	f.branchA, err = svc.CreateBranch(ctx, hq, org.BranchInput{Code: " seoul ", Name: "Seoul"})
	require.NoError(t, err)
	f.branchB, err = svc.CreateBranch(ctx, hq, org.BranchInput{Code: "BUSAN", Name: "Busan"})
	require.NoError(t, err)
	f.storeA, err = svc.CreateStore(ctx, hq, org.StoreInput{BranchID: &f.branchA.ID, Name: "Gangnam"})
	require.NoError(t, err)
	f.storeB, err = svc.CreateStore(ctx, hq, org.StoreInput{BranchID: &f.branchB.ID, Name: "Haeundae"})
	require.NoError(t, err)
	return f
}

func TestBranchCodesAreNormalisedAndUnique(t *testing.T) {
	f := newOrgFixture(t)
	assert.Equal(t, "SEOUL", f.branchA.Code)
	_, err := f.svc.CreateBranch(context.Background(), access.HeadquartersIdentity(1), org.BranchInput{Code: "Seoul", Name: "dup"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestOnlyHeadquartersManagesBranches(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateBranch(ctx, access.BranchIdentity(2, f.branchA.ID), org.BranchInput{Code: "X", Name: "X"})
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
	_, err = f.svc.UpdateBranch(ctx, access.StoreIdentity(3, f.storeA.ID), f.branchA.ID, org.BranchInput{Code: "X", Name: "X"})
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
	_, err = f.svc.CreateBranch(ctx, access.HeadquartersIdentity(1), org.BranchInput{Code: "", Name: "X"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestListBranchesIsScoped(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()

	all, err := f.svc.ListBranches(ctx, access.HeadquartersIdentity(1))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := f.svc.ListBranches(ctx, access.StoreIdentity(3, f.storeB.ID))
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, f.branchB.ID, own[0].ID)
}

func TestBranchCreatesStoresUnderItsOwnBranch(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()
	branch := access.BranchIdentity(2, f.branchA.ID)

	st, err := f.svc.CreateStore(ctx, branch, org.StoreInput{Name: "Yeoksam"})
	require.NoError(t, err)
	assert.Equal(t, f.branchA.ID, st.BranchID)

	_, err = f.svc.CreateStore(ctx, branch, org.StoreInput{BranchID: &f.branchB.ID, Name: "Elsewhere"})
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	ghost := int64(99)
	_, err = f.svc.CreateStore(ctx, access.HeadquartersIdentity(1), org.StoreInput{BranchID: &ghost, Name: "Ghost"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestOnlyHeadquartersMovesStores(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStore(ctx, access.BranchIdentity(2, f.branchA.ID), f.storeA.ID, org.StoreInput{BranchID: &f.branchB.ID, Name: "Gangnam"})
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	renamed, err := f.svc.UpdateStore(ctx, access.BranchIdentity(2, f.branchA.ID), f.storeA.ID, org.StoreInput{Name: "Gangnam 2"})
	require.NoError(t, err)
	assert.Equal(t, "Gangnam 2", renamed.Name)

	moved, err := f.svc.UpdateStore(ctx, access.HeadquartersIdentity(1), f.storeA.ID, org.StoreInput{BranchID: &f.branchB.ID, Name: "Gangnam 2"})
	require.NoError(t, err)
	assert.Equal(t, f.branchB.ID, moved.BranchID)

	ids, err := f.svc.AccessibleStoreIDs(ctx, access.BranchIdentity(2, f.branchB.ID))
	require.NoError(t, err)
	assert.Equal(t, []int64{f.storeA.ID, f.storeB.ID}, ids)

	_, err = f.svc.UpdateStore(ctx, access.BranchIdentity(2, f.branchA.ID), f.storeA.ID, org.StoreInput{Name: "lost"})
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
	_, err = f.svc.UpdateStore(ctx, access.StoreIdentity(3, f.storeA.ID), f.storeA.ID, org.StoreInput{Name: "self"})
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
}

func TestListStoresRejectsConflictingBranch(t *testing.T) {
	f := newOrgFixture(t)
	_, err := f.svc.ListStores(context.Background(), access.BranchIdentity(2, f.branchA.ID), &f.branchB.ID)
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	stores, err := f.svc.ListStores(context.Background(), access.HeadquartersIdentity(1), &f.branchB.ID)
	require.NoError(t, err)
	require.Len(t, stores, 1)
	assert.Equal(t, f.storeB.ID, stores[0].ID)
}

func TestSetGoal(t *testing.T) {
	f := newOrgFixture(t)
	ctx := context.Background()
	in := org.GoalInput{TargetCount: 30, TargetAmount: 4_500_000}

	g, err := f.svc.SetGoal(ctx, access.BranchIdentity(2, f.branchA.ID), f.storeA.ID, "2026-03", in)
	require.NoError(t, err)
	assert.Equal(t, "2026-03", g.Month)

	_, err = f.svc.SetGoal(ctx, access.BranchIdentity(2, f.branchA.ID), f.storeB.ID, "2026-03", in)
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
	_, err = f.svc.SetGoal(ctx, access.HeadquartersIdentity(1), f.storeA.ID, "March", in)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.SetGoal(ctx, access.StoreIdentity(3, f.storeA.ID), f.storeA.ID, "2026-03", in)
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
}
