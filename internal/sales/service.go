package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/platform/httpx"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

const (
	idempotencyModule = "sales.bulk"
	maxBatchRows      = 500
)

// Options carries the optional collaborators of Service.
type Options struct {
	Versions    VersionTracker
	Idempotency IdempotencyGuard
	Publisher   Publisher
	Metrics     Metrics
	Logger      *slog.Logger
	PageSize    int
	MaxPageSize int
	Now         func() time.Time
}

// Service implements scoped reads and the all-or-nothing bulk upsert.
type Service struct {
	repo        Repository
	calc        settlement.Calculator
	versions    VersionTracker
	idem        IdempotencyGuard
	publisher   Publisher
	metrics     Metrics
	logger      *slog.Logger
	validate    *validator.Validate
	pageSize    int
	maxPageSize int
	now         func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository, calc settlement.Calculator, opts Options) *Service {
	s := &Service{
		repo:        repo,
		calc:        calc,
		versions:    opts.Versions,
		idem:        opts.Idempotency,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		validate:    httpx.NewValidator(),
		pageSize:    opts.PageSize,
		maxPageSize: opts.MaxPageSize,
		now:         opts.Now,
	}
	if s.versions == nil {
		s.versions = &LocalVersion{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.pageSize <= 0 {
		s.pageSize = 50
	}
	if s.maxPageSize <= 0 {
		s.maxPageSize = 500
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// List returns one page of in-scope records and the current list version.
func (s *Service) List(ctx context.Context, id access.Identity, q ListQuery) (shared.Page[Record], int64, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return shared.Page[Record]{}, 0, err
	}
	filter, err := scope.Narrow(ctx, s.repo, access.Request{StoreID: q.StoreID, BranchID: q.BranchID})
	if err != nil {
		return shared.Page[Record]{}, 0, err
	}
	from, to, err := s.dateRange(q)
	if err != nil {
		return shared.Page[Record]{}, 0, err
	}
	page := shared.NormalizePage(q.Page, q.PerPage, s.pageSize, s.maxPageSize)

	records, total, err := s.repo.List(ctx, Criteria{
		Filter: filter,
		From:   from,
		To:     to,
		Limit:  page.PerPage,
		Offset: page.Offset(),
	})
	if err != nil {
		return shared.Page[Record]{}, 0, fmt.Errorf("list sales: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	version, err := s.versions.Current(ctx)
	if err != nil {
		s.logger.Warn("read sales list version", slog.Any("error", err))
		version = 0
	}
	return shared.Page[Record]{Pagination: shared.NewPagination(page, total), Data: records}, version, nil
}

func (s *Service) dateRange(q ListQuery) (string, string, error) {
	if q.SaleDate != "" {
		if _, err := time.Parse(DateLayout, q.SaleDate); err != nil {
			return "", "", shared.FieldErrors{"sale_date": "must match YYYY-MM-DD"}
		}
		return q.SaleDate, q.SaleDate, nil
	}
	if q.AllData {
		return "", "", nil
	}
	now := s.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 1, -1)
	return first.Format(DateLayout), last.Format(DateLayout), nil
}

// Get returns one record when it is in scope.
func (s *Service) Get(ctx context.Context, id access.Identity, recordID int64) (Record, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return Record{}, err
	}
	return s.authorize(ctx, scope, recordID)
}

// Delete removes one in-scope record.
func (s *Service) Delete(ctx context.Context, id access.Identity, recordID int64) error {
	scope, err := access.Resolve(id)
	if err != nil {
		return err
	}
	rec, err := s.authorize(ctx, scope, recordID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, recordID); err != nil {
		return err
	}
	s.logger.Info("sale deleted",
		slog.Int64("sale_id", recordID),
		slog.Int64("store_id", rec.StoreID),
		slog.Int64("actor_id", id.UserID))
	s.bumpVersion(ctx)
	return nil
}

// authorize loads a record and checks it against the scope using the
// store's current branch. Unknown ids look like scope violations to anyone
// but headquarters.
func (s *Service) authorize(ctx context.Context, scope access.Scope, recordID int64) (Record, error) {
	rec, branchID, err := s.repo.Get(ctx, recordID)
	if err != nil {
		if shared.IsNotFound(err) && scope.Kind() != access.Unrestricted {
			return Record{}, shared.Scopef("sale %d is outside your scope", recordID)
		}
		return Record{}, err
	}
	if !scope.Permits(rec.StoreID, branchID) {
		return Record{}, shared.Scopef("sale %d is outside your scope", recordID)
	}
	return rec, nil
}

// idempotencyNamespace keeps keys private to the caller.
func idempotencyNamespace(id access.Identity) string {
	return fmt.Sprintf("%s:%d", idempotencyModule, id.UserID)
}

type preparedRow struct {
	in       RowInput
	result   settlement.Result
	ok       bool
	existing *Record
	storeID  int64
	branchID int64
}

// BulkUpsert validates every row and commits the batch atomically. Any
// rejected row rejects the batch with a *BatchError and nothing is written.
// A non-empty idemKey is claimed first and released again if the batch fails.
func (s *Service) BulkUpsert(ctx context.Context, id access.Identity, req BulkRequest, idemKey string) (res BulkResult, err error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return BulkResult{}, err
	}
	if len(req.Sales) == 0 {
		return BulkResult{}, shared.FieldErrors{"sales": "must contain at least one row"}
	}
	if len(req.Sales) > maxBatchRows {
		return BulkResult{}, shared.FieldErrors{"sales": fmt.Sprintf("must contain at most %d rows", maxBatchRows)}
	}
	if req.StoreID != nil {
		if *req.StoreID <= 0 {
			return BulkResult{}, shared.FieldErrors{"store_id": "must be a positive integer"}
		}
		if _, err := scope.PermitsStore(ctx, s.repo, *req.StoreID); err != nil {
			if shared.IsNotFound(err) {
				return BulkResult{}, shared.FieldErrors{"store_id": fmt.Sprintf("store %d does not exist", *req.StoreID)}
			}
			return BulkResult{}, err
		}
	}

	if idemKey != "" && s.idem != nil {
		module := idempotencyNamespace(id)
		if err := s.idem.Claim(ctx, idemKey, module); err != nil {
			return BulkResult{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := s.idem.Release(context.WithoutCancel(ctx), idemKey, module); rerr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", idemKey), slog.Any("error", rerr))
			}
		}()
	}

	batchErr := &BatchError{}
	rows := s.prepare(req.Sales, batchErr)

	now := s.now().UTC()
	saved := make([]Record, 0, len(rows))
	var created, updated int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.resolveTargets(ctx, tx, scope, req.StoreID, rows, batchErr); err != nil {
			return err
		}
		if !batchErr.empty() {
			return batchErr
		}
		for i := range rows {
			r := &rows[i]
			rec := Record{
				StoreID:        r.storeID,
				BranchID:       r.branchID,
				SaleDate:       r.in.SaleDate,
				Carrier:        r.in.Carrier,
				ActivationType: r.in.ActivationType,
				ModelName:      r.in.ModelName,
				Input:          r.in.Input,
				Result:         r.result,
				UpdatedAt:      now,
			}
			if r.existing != nil {
				rec.ID = r.existing.ID
				rec.Version = r.existing.Version
				rec.CreatedBy = r.existing.CreatedBy
				rec.CreatedAt = r.existing.CreatedAt
				out, err := tx.Update(ctx, rec)
				if err != nil {
					return fmt.Errorf("update sale %d: %w", rec.ID, err)
				}
				saved = append(saved, out)
				updated++
				continue
			}
			rec.CreatedBy = id.UserID
			rec.CreatedAt = now
			out, err := tx.Insert(ctx, rec)
			if err != nil {
				return fmt.Errorf("insert sale row %d: %w", i, err)
			}
			saved = append(saved, out)
			created++
		}
		return nil
	})
	if err != nil {
		var be *BatchError
		if errors.As(err, &be) {
			be.sort()
			s.logger.Info("sales batch rejected",
				slog.Int64("actor_id", id.UserID),
				slog.Int("rows", len(req.Sales)),
				slog.Int("rejected_rows", len(be.Rows)))
			if s.metrics != nil {
				s.metrics.BatchRejected(be.reason())
			}
		}
		return BulkResult{}, err
	}

	ids := make([]int64, len(saved))
	for i, rec := range saved {
		ids[i] = rec.ID
	}
	version := s.bumpVersion(ctx)
	s.publish(ctx, BatchSaved{
		ActorID:   id.UserID,
		RecordIDs: ids,
		StoreIDs:  distinctStores(saved),
		Created:   created,
		Updated:   updated,
		At:        now,
	})
	if s.metrics != nil {
		s.metrics.RowsSaved(len(saved))
	}
	s.logger.Info("sales batch saved",
		slog.Int64("actor_id", id.UserID),
		slog.Int("created", created),
		slog.Int("updated", updated))

	return BulkResult{
		SavedCount: len(saved),
		Created:    created,
		Updated:    updated,
		IDs:        ids,
		Version:    version,
	}, nil
}

// prepare normalises, validates and prices every row.
func (s *Service) prepare(in []RowInput, batchErr *BatchError) []preparedRow {
	rows := make([]preparedRow, len(in))
	seen := make(map[int64]int, len(in))
	for i, raw := range in {
		row := normalizeRow(raw)
		rows[i].in = row
		if err := httpx.Validate(s.validate, row); err != nil {
			addFieldErrors(batchErr, i, row.ID, err)
			continue
		}
		if row.ID != nil {
			if j, dup := seen[*row.ID]; dup {
				batchErr.add(RowError{Index: i, ID: row.ID, Field: "id", Message: fmt.Sprintf("duplicates row %d", j), Kind: KindValidation})
				continue
			}
			seen[*row.ID] = i
		}
		result, err := s.calc.Compute(row.Input)
		if err != nil {
			addFieldErrors(batchErr, i, row.ID, err)
			continue
		}
		rows[i].result = result
		rows[i].ok = true
	}
	return rows
}

// resolveTargets locks the updated records, picks each row's store and
// checks it against the scope using branch assignments read inside the
// transaction.
func (s *Service) resolveTargets(ctx context.Context, tx TxRepository, scope access.Scope, batchStore *int64, rows []preparedRow, batchErr *BatchError) error {
	hq := scope.Kind() == access.Unrestricted

	var ids []int64
	for _, r := range rows {
		if r.ok && r.in.ID != nil {
			ids = append(ids, *r.in.ID)
		}
	}
	existing, err := tx.LockForUpdate(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock sales: %w", err)
	}

	storeSet := make(map[int64]struct{})
	for i := range rows {
		r := &rows[i]
		if !r.ok {
			continue
		}
		if r.in.ID != nil {
			cur, found := existing[*r.in.ID]
			if !found {
				r.ok = false
				if hq {
					batchErr.add(RowError{Index: i, ID: r.in.ID, Field: "id", Message: fmt.Sprintf("sale %d does not exist", *r.in.ID), Kind: KindValidation})
				} else {
					batchErr.add(RowError{Index: i, ID: r.in.ID, Field: "id", Message: fmt.Sprintf("sale %d is outside your scope", *r.in.ID), Kind: KindScope})
				}
				continue
			}
			r.existing = &cur
			r.storeID = cur.StoreID
			storeSet[cur.StoreID] = struct{}{}
			if r.in.StoreID != nil {
				r.storeID = *r.in.StoreID
			}
		} else {
			switch {
			case r.in.StoreID != nil:
				r.storeID = *r.in.StoreID
			case batchStore != nil:
				r.storeID = *batchStore
			default:
				own, ok := scope.StoreID()
				if !ok {
					r.ok = false
					batchErr.add(RowError{Index: i, Field: "store_id", Message: "is required", Kind: KindValidation})
					continue
				}
				r.storeID = own
			}
		}
		storeSet[r.storeID] = struct{}{}
	}

	storeIDs := make([]int64, 0, len(storeSet))
	for id := range storeSet {
		storeIDs = append(storeIDs, id)
	}
	sort.Slice(storeIDs, func(i, j int) bool { return storeIDs[i] < storeIDs[j] })
	branches, err := tx.StoreBranches(ctx, storeIDs)
	if err != nil {
		return fmt.Errorf("locate stores: %w", err)
	}

	for i := range rows {
		r := &rows[i]
		if !r.ok {
			continue
		}
		if r.existing != nil {
			b, found := branches[r.existing.StoreID]
			if !found || !scope.Permits(r.existing.StoreID, b) {
				r.ok = false
				batchErr.add(RowError{Index: i, ID: r.in.ID, Field: "id", Message: fmt.Sprintf("sale %d is outside your scope", r.existing.ID), Kind: KindScope})
				continue
			}
		}
		b, found := branches[r.storeID]
		if !found {
			r.ok = false
			if hq {
				batchErr.add(RowError{Index: i, ID: r.in.ID, Field: "store_id", Message: fmt.Sprintf("store %d does not exist", r.storeID), Kind: KindValidation})
			} else {
				batchErr.add(RowError{Index: i, ID: r.in.ID, Field: "store_id", Message: fmt.Sprintf("store %d is outside your scope", r.storeID), Kind: KindScope})
			}
			continue
		}
		if !scope.Permits(r.storeID, b) {
			r.ok = false
			batchErr.add(RowError{Index: i, ID: r.in.ID, Field: "store_id", Message: fmt.Sprintf("store %d is outside your scope", r.storeID), Kind: KindScope})
			continue
		}
		r.branchID = b
	}
	return nil
}

func (s *Service) bumpVersion(ctx context.Context) int64 {
	v, err := s.versions.Bump(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("bump sales list version", slog.Any("error", err))
		return 0
	}
	return v
}

func (s *Service) publish(ctx context.Context, evt BatchSaved) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBatchSaved(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("publish sales batch", slog.Any("error", err), slog.Int("records", len(evt.RecordIDs)))
	}
}

func addFieldErrors(batchErr *BatchError, index int, id *int64, err error) {
	var fe shared.FieldErrors
	if errors.As(err, &fe) {
		for field, msg := range fe {
			batchErr.add(RowError{Index: index, ID: id, Field: field, Message: msg, Kind: KindValidation})
		}
		return
	}
	batchErr.add(RowError{Index: index, ID: id, Message: err.Error(), Kind: KindValidation})
}

func distinctStores(records []Record) []int64 {
	seen := make(map[int64]struct{}, len(records))
	out := make([]int64, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.StoreID]; ok {
			continue
		}
		seen[r.StoreID] = struct{}{}
		out = append(out, r.StoreID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
