// Package stats rolls scoped sales up into dashboards and period summaries.
// Nothing is cached: every call reads through the caller's live scope.
package stats

import (
	"context"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/org"
)

// Period is an inclusive YYYY-MM-DD date range.
type Period struct {
	Start string `json:"start_date"`
	End   string `json:"end_date"`
}

// Totals sums the derived fields of a set of sales.
type Totals struct {
	Count            int64 `json:"count"`
	SettlementAmount int64 `json:"settlement_amount"`
	MarginBeforeTax  int64 `json:"margin_before_tax"`
	MarginAfterTax   int64 `json:"margin_after_tax"`
}

// Add accumulates o into t.
func (t *Totals) Add(o Totals) {
	t.Count += o.Count
	t.SettlementAmount += o.SettlementAmount
	t.MarginBeforeTax += o.MarginBeforeTax
	t.MarginAfterTax += o.MarginAfterTax
}

// CarrierShare is one carrier's slice of the period. ShareBP is its share of
// the activation count in basis points.
type CarrierShare struct {
	Carrier string `json:"carrier"`
	Totals
	ShareBP int64 `json:"share_bp"`
}

// StoreRank is one row of the store ranking.
type StoreRank struct {
	Rank      int    `json:"rank"`
	StoreID   int64  `json:"store_id"`
	StoreName string `json:"store_name"`
	BranchID  int64  `json:"branch_id"`
	Totals
}

// GoalProgress compares the summed monthly targets of in-scope stores with
// actual results. Progress values are basis points of the target.
type GoalProgress struct {
	Months           []string `json:"months"`
	TargetCount      int64    `json:"target_count"`
	TargetAmount     int64    `json:"target_amount"`
	ActualCount      int64    `json:"actual_count"`
	ActualAmount     int64    `json:"actual_amount"`
	CountProgressBP  int64    `json:"count_progress_bp"`
	AmountProgressBP int64    `json:"amount_progress_bp"`
}

// Summary is the body of a period report.
type Summary struct {
	Totals       Totals         `json:"totals"`
	ByCarrier    []CarrierShare `json:"by_carrier"`
	ByStoreRank  []StoreRank    `json:"by_store_rank"`
	GoalProgress GoalProgress   `json:"goal_progress"`
}

// Report is the response of the statistics endpoint.
type Report struct {
	Period  Period  `json:"period"`
	Summary Summary `json:"summary"`
}

// StoreCount is the stores block of overview metadata.
type StoreCount struct {
	Total int `json:"total"`
}

// OverviewMeta describes the scope the overview was computed for.
// Headquarters overviews carry no branch or store marker.
type OverviewMeta struct {
	Scope       string     `json:"scope"`
	BranchID    *int64     `json:"branch_id,omitempty"`
	StoreID     *int64     `json:"store_id,omitempty"`
	Stores      StoreCount `json:"stores"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Overview is the dashboard roll-up for today and the current month.
type Overview struct {
	Today Totals       `json:"today"`
	Month Totals       `json:"month"`
	Meta  OverviewMeta `json:"meta"`
}

// Query is a scoped date range handed to a Source.
type Query struct {
	Filter access.Filter
	From   string
	To     string
}

// Cell sums the sales of one store and carrier.
type Cell struct {
	StoreID int64
	Carrier string
	Totals
}

// Source sums sales matching a query. Branch filters match the store's
// current branch.
type Source interface {
	Totals(ctx context.Context, q Query) (Totals, error)
	StoreTotals(ctx context.Context, q Query) (map[int64]Totals, error)
	// Breakdown groups by store and carrier in a single read, so every
	// figure of a report derived from it describes the same set of sales.
	Breakdown(ctx context.Context, q Query) ([]Cell, error)
}

// Directory lists the stores and goals in scope.
type Directory interface {
	ListStores(ctx context.Context, filter access.Filter) ([]org.Store, error)
	ListGoals(ctx context.Context, filter access.Filter, months []string) ([]org.StoreGoal, error)
}
