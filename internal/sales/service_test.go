package sales_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
	"github.com/mobilenet-retail/backoffice/internal/shared"
	"github.com/mobilenet-retail/backoffice/internal/store/memory"
)

var now = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishBatchSaved(ctx context.Context, evt sales.BatchSaved) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

type countingMetrics struct {
	saved    int
	rejected []string
}

func (c *countingMetrics) RowsSaved(n int)             { c.saved += n }
func (c *countingMetrics) BatchRejected(reason string) { c.rejected = append(c.rejected, reason) }

type fixture struct {
	store     *memory.Store
	service   *sales.Service
	metrics   *countingMetrics
	branchA   org.Branch
	branchB   org.Branch
	storeA    org.Store
	storeA2   org.Store
	storeB    org.Store
	publisher *mockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New(func() time.Time { return now })
	f := &fixture{store: st, metrics: &countingMetrics{}, publisher: &mockPublisher{}}

	var err error
	f.branchA, err = st.CreateBranch(ctx, org.Branch{Code: "A", Name: "Branch A"})
	require.NoError(t, err)
	f.branchB, err = st.CreateBranch(ctx, org.Branch{Code: "B", Name: "Branch B"})
	require.NoError(t, err)
	f.storeA, err = st.CreateStore(ctx, org.Store{BranchID: f.branchA.ID, Name: "A-1"})
	require.NoError(t, err)
	f.storeA2, err = st.CreateStore(ctx, org.Store{BranchID: f.branchA.ID, Name: "A-2"})
	require.NoError(t, err)
	f.storeB, err = st.CreateStore(ctx, org.Store{BranchID: f.branchB.ID, Name: "B-1"})
	require.NoError(t, err)

	calc, err := settlement.New(settlement.Policy{Code: settlement.DefaultProfile, TaxRateBP: 1000})
	require.NoError(t, err)
	f.publisher.On("PublishBatchSaved", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.service = sales.NewService(st, calc, sales.Options{
		Idempotency: st,
		Publisher:   f.publisher,
		Metrics:     f.metrics,
		Now:         func() time.Time { return now },
	})
	return f
}

func row(date string) sales.RowInput {
	return sales.RowInput{
		SaleDate:       date,
		Carrier:        "sk",
		ActivationType: "new",
		ModelName:      "Galaxy S26",
		Input:          settlement.Input{BasePrice: 100000, Verbal1: 50000, UsimFee: 3000},
	}
}

func ptr(v int64) *int64 { return &v }

func (f *fixture) hq() access.Identity        { return access.HeadquartersIdentity(1) }
func (f *fixture) branchAID() access.Identity { return access.BranchIdentity(2, f.branchA.ID) }
func (f *fixture) storeAID() access.Identity  { return access.StoreIdentity(3, f.storeA.ID) }

func TestStoreSubmitsOneRowWithDerivedSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SavedCount)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, int64(1), res.Version)

	rec, err := f.service.Get(ctx, f.storeAID(), res.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, f.storeA.ID, rec.StoreID)
	assert.Equal(t, "SK", rec.Carrier)
	assert.Equal(t, int64(150000), rec.SettlementAmount)
	assert.Equal(t, int64(147000), rec.MarginBeforeTax)
	assert.Equal(t, int64(132300), rec.MarginAfterTax)
	assert.Equal(t, int64(3), rec.CreatedBy)
	assert.Equal(t, 1, f.metrics.saved)
	f.publisher.AssertCalled(t, "PublishBatchSaved", mock.Anything, mock.MatchedBy(func(evt sales.BatchSaved) bool {
		return evt.Created == 1 && evt.ActorID == 3 && len(evt.StoreIDs) == 1 && evt.StoreIDs[0] == f.storeA.ID
	}))
}

func TestPureUpdateBatchKeepsRowCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10"), row("2026-03-11")}}, "")
	require.NoError(t, err)
	require.Equal(t, 2, f.store.Count())

	upd := row("2026-03-12")
	upd.ID = ptr(first.IDs[0])
	upd.Payback = 7000
	res, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{upd}}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Created)
	assert.Equal(t, 2, f.store.Count())

	rec, err := f.service.Get(ctx, f.hq(), first.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, int64(140000), rec.MarginBeforeTax)
	assert.Equal(t, "2026-03-12", rec.SaleDate)
}

func TestOneInvalidRowRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	bad := row("2026-13-40")
	_, err := f.service.BulkUpsert(context.Background(), f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10"), bad}}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)

	var be *sales.BatchError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Rows, 1)
	assert.Equal(t, 1, be.Rows[0].Index)
	assert.Equal(t, "sale_date", be.Rows[0].Field)
	assert.Zero(t, f.store.Count())
	assert.Equal(t, []string{"validation"}, f.metrics.rejected)
	f.publisher.AssertNotCalled(t, "PublishBatchSaved", mock.Anything, mock.Anything)
}

func TestBranchCannotWriteForeignStore(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.BulkUpsert(context.Background(), f.branchAID(), sales.BulkRequest{
		Sales:   []sales.RowInput{row("2026-03-10")},
		StoreID: ptr(f.storeB.ID),
	}, "")
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	foreign := row("2026-03-10")
	foreign.StoreID = ptr(f.storeB.ID)
	_, err = f.service.BulkUpsert(context.Background(), f.branchAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10"), foreign}}, "")
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
	assert.Zero(t, f.store.Count())
}

func TestBranchWritesAnyOwnStore(t *testing.T) {
	f := newFixture(t)
	r1, r2 := row("2026-03-10"), row("2026-03-10")
	r1.StoreID, r2.StoreID = ptr(f.storeA.ID), ptr(f.storeA2.ID)
	res, err := f.service.BulkUpsert(context.Background(), f.branchAID(), sales.BulkRequest{Sales: []sales.RowInput{r1, r2}}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SavedCount)
}

func TestBranchMustNameStoreOnInsert(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.BulkUpsert(context.Background(), f.branchAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestStoreCannotUpdateAnotherStoresSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := row("2026-03-10")
	other.StoreID = ptr(f.storeB.ID)
	res, err := f.service.BulkUpsert(ctx, f.hq(), sales.BulkRequest{Sales: []sales.RowInput{other}}, "")
	require.NoError(t, err)

	upd := row("2026-03-10")
	upd.ID = ptr(res.IDs[0])
	_, err = f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{upd}}, "")
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	_, err = f.service.Get(ctx, f.storeAID(), res.IDs[0])
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
	assert.ErrorIs(t, f.service.Delete(ctx, f.storeAID(), res.IDs[0]), shared.ErrScopeViolation)
}

func TestUnknownIDsDependOnRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ghost := row("2026-03-10")
	ghost.ID = ptr(404)

	_, err := f.service.BulkUpsert(ctx, f.hq(), sales.BulkRequest{Sales: []sales.RowInput{ghost}}, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{ghost}}, "")
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	_, err = f.service.Get(ctx, f.hq(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.service.Get(ctx, f.branchAID(), 404)
	assert.ErrorIs(t, err, shared.ErrScopeViolation)
}

func TestDuplicateRowIDsAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)
	a, b := row("2026-03-10"), row("2026-03-11")
	a.ID, b.ID = ptr(res.IDs[0]), ptr(res.IDs[0])
	_, err = f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{a, b}}, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestIdempotencyKeyReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}

	_, err := f.service.BulkUpsert(ctx, f.storeAID(), req, "key-1")
	require.NoError(t, err)
	_, err = f.service.BulkUpsert(ctx, f.storeAID(), req, "key-1")
	assert.ErrorIs(t, err, shared.ErrDuplicateRequest)
	assert.Equal(t, 1, f.store.Count())

	bad := sales.BulkRequest{Sales: []sales.RowInput{row("nope")}}
	_, err = f.service.BulkUpsert(ctx, f.storeAID(), bad, "key-2")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.service.BulkUpsert(ctx, f.storeAID(), req, "key-2")
	assert.NoError(t, err, "a failed batch releases its key")
}

func TestIdempotencyKeysArePrivateToTheCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storeB := access.StoreIdentity(9, f.storeB.ID)

	_, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "batch-1")
	require.NoError(t, err)
	_, err = f.service.BulkUpsert(ctx, storeB, sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.Count())

	_, err = f.service.BulkUpsert(ctx, storeB, sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "batch-1")
	assert.ErrorIs(t, err, shared.ErrDuplicateRequest)
}

type brokenVersions struct{}

func (brokenVersions) Current(context.Context) (int64, error) { return 0, errors.New("redis down") }
func (brokenVersions) Bump(context.Context) (int64, error)    { return 0, errors.New("redis down") }

func TestListSurvivesVersionTrackerOutage(t *testing.T) {
	f := newFixture(t)
	calc, err := settlement.New(settlement.Policy{Code: settlement.DefaultProfile, TaxRateBP: 1000})
	require.NoError(t, err)
	svc := sales.NewService(f.store, calc, sales.Options{Versions: brokenVersions{}, Now: func() time.Time { return now }})
	ctx := context.Background()

	_, err = svc.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)

	page, version, err := svc.List(ctx, f.storeAID(), sales.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.Equal(t, 1, page.Total)
}

func TestListPastTheLastRepresentablePageIsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)

	page, _, err := f.service.List(ctx, f.hq(), sales.ListQuery{Page: math.MaxInt64/500 + 2, PerPage: 500})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, 1, page.Total)
}

func TestResavingUnchangedRowKeepsDerivedFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)
	before, err := f.service.Get(ctx, f.storeAID(), first.IDs[0])
	require.NoError(t, err)

	same := row("2026-03-10")
	same.ID = ptr(first.IDs[0])
	_, err = f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{same}}, "")
	require.NoError(t, err)

	after, err := f.service.Get(ctx, f.storeAID(), first.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, before.SettlementAmount, after.SettlementAmount)
	assert.Equal(t, before.MarginBeforeTax, after.MarginBeforeTax)
	assert.Equal(t, before.MarginAfterTax, after.MarginAfterTax)
	assert.Equal(t, before.Version+1, after.Version)
}

func TestPublishFailureDoesNotFailCommittedBatch(t *testing.T) {
	f := newFixture(t)
	pub := &mockPublisher{}
	pub.On("PublishBatchSaved", mock.Anything, mock.Anything).Return(errors.New("queue down"))
	calc, err := settlement.New(settlement.Policy{Code: settlement.DefaultProfile, TaxRateBP: 1000})
	require.NoError(t, err)
	svc := sales.NewService(f.store, calc, sales.Options{Publisher: pub, Now: func() time.Time { return now }})

	res, err := svc.BulkUpsert(context.Background(), f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SavedCount)
	pub.AssertExpectations(t)
}

func TestListDefaultsToCurrentMonthAndScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, old, b := row("2026-03-10"), row("2026-02-27"), row("2026-03-11")
	a.StoreID, old.StoreID, b.StoreID = ptr(f.storeA.ID), ptr(f.storeA.ID), ptr(f.storeB.ID)
	_, err := f.service.BulkUpsert(ctx, f.hq(), sales.BulkRequest{Sales: []sales.RowInput{a, old, b}}, "")
	require.NoError(t, err)

	page, version, err := f.service.List(ctx, f.hq(), sales.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, int64(1), version)

	page, _, err = f.service.List(ctx, f.hq(), sales.ListQuery{AllData: true})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, _, err = f.service.List(ctx, f.hq(), sales.ListQuery{SaleDate: "2026-02-27"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, _, err = f.service.List(ctx, f.branchAID(), sales.ListQuery{AllData: true})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	for _, r := range page.Data {
		assert.Equal(t, f.branchA.ID, r.BranchID)
	}

	_, _, err = f.service.List(ctx, f.branchAID(), sales.ListQuery{StoreID: ptr(f.storeB.ID)})
	assert.ErrorIs(t, err, shared.ErrScopeViolation)

	_, _, err = f.service.List(ctx, f.hq(), sales.ListQuery{SaleDate: "15/03/2026"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestListFollowsStoreMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)

	moved := f.storeA
	moved.BranchID = f.branchB.ID
	_, err = f.store.UpdateStore(ctx, moved)
	require.NoError(t, err)

	page, _, err := f.service.List(ctx, f.branchAID(), sales.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	page, _, err = f.service.List(ctx, access.BranchIdentity(9, f.branchB.ID), sales.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestDeleteBumpsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.service.BulkUpsert(ctx, f.storeAID(), sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, f.storeAID(), res.IDs[0]))
	page, version, err := f.service.List(ctx, f.storeAID(), sales.ListQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Equal(t, int64(2), version)
}

func TestInvalidIdentityIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.BulkUpsert(context.Background(), access.Identity{UserID: 1, Role: access.RoleStore}, sales.BulkRequest{Sales: []sales.RowInput{row("2026-03-10")}}, "")
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}
