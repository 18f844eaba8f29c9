// Package sales records activation sales and keeps their settlement fields
// consistent with the ledger.
package sales

import (
	"context"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
)

// DateLayout is the wire format of sale dates.
const DateLayout = "2006-01-02"

// Record is one persisted activation. The embedded Result is always the
// calculator output for the embedded Input.
type Record struct {
	ID             int64  `json:"id"`
	StoreID        int64  `json:"store_id"`
	BranchID       int64  `json:"branch_id"`
	SaleDate       string `json:"sale_date"`
	Carrier        string `json:"carrier"`
	ActivationType string `json:"activation_type"`
	ModelName      string `json:"model_name"`
	settlement.Input
	settlement.Result
	Version   int64     `json:"version"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RowInput is one row of a bulk upsert. A row with ID updates that record;
// without it a new record is inserted. Derived fields sent by the client are
// not decoded.
type RowInput struct {
	ID             *int64 `json:"id" validate:"omitempty,gt=0"`
	StoreID        *int64 `json:"store_id" validate:"omitempty,gt=0"`
	SaleDate       string `json:"sale_date" validate:"required,datetime=2006-01-02"`
	Carrier        string `json:"carrier" validate:"required,max=16"`
	ActivationType string `json:"activation_type" validate:"required,max=32"`
	ModelName      string `json:"model_name" validate:"max=120"`
	settlement.Input
}

// BulkRequest is the body of POST /api/sales/bulk.
type BulkRequest struct {
	Sales   []RowInput `json:"sales" validate:"required,min=1,max=500"`
	StoreID *int64     `json:"store_id" validate:"omitempty,gt=0"`
}

// BulkResult reports a committed batch.
type BulkResult struct {
	SavedCount int     `json:"saved_count"`
	Created    int     `json:"created"`
	Updated    int     `json:"updated"`
	IDs        []int64 `json:"ids"`
	Version    int64   `json:"version"`
}

// ListQuery filters the sales list. A zero SaleDate with AllData unset
// bounds the list to the current month.
type ListQuery struct {
	StoreID  *int64
	BranchID *int64
	AllData  bool
	SaleDate string
	Page     int
	PerPage  int
}

// Criteria is a scoped, normalised list query handed to the repository.
// From and To are inclusive YYYY-MM-DD bounds; empty means unbounded.
type Criteria struct {
	Filter access.Filter
	From   string
	To     string
	Limit  int
	Offset int
}

// Repository reads and deletes records. Every method takes a Filter built by
// access.Scope; branch filters match the store's current branch.
type Repository interface {
	access.StoreLocator

	List(ctx context.Context, c Criteria) ([]Record, int, error)
	// Get returns the record regardless of scope together with the current
	// branch of its store; callers check scope.
	Get(ctx context.Context, id int64) (Record, int64, error)
	Delete(ctx context.Context, id int64) error
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository is the write side of one atomic batch.
type TxRepository interface {
	access.StoreLocator

	// LockForUpdate returns the records with ids, locking them until commit.
	// Missing ids are absent from the result.
	LockForUpdate(ctx context.Context, ids []int64) (map[int64]Record, error)
	Insert(ctx context.Context, r Record) (Record, error)
	// Update overwrites the record and increments its version.
	Update(ctx context.Context, r Record) (Record, error)
}

// VersionTracker exposes the global list version clients poll to detect
// changes.
type VersionTracker interface {
	Current(ctx context.Context) (int64, error)
	Bump(ctx context.Context) (int64, error)
}

// IdempotencyGuard rejects a replayed request key.
type IdempotencyGuard interface {
	Claim(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// BatchSaved describes a committed batch for post-commit consumers.
type BatchSaved struct {
	ActorID   int64     `json:"actor_id"`
	RecordIDs []int64   `json:"record_ids"`
	StoreIDs  []int64   `json:"store_ids"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	At        time.Time `json:"at"`
}

// Publisher hands committed batches to the audit pipeline.
type Publisher interface {
	PublishBatchSaved(ctx context.Context, evt BatchSaved) error
}

// Metrics counts business outcomes.
type Metrics interface {
	RowsSaved(n int)
	BatchRejected(reason string)
}
