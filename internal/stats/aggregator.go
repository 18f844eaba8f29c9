package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

const (
	dateLayout       = "2006-01-02"
	monthLayout      = "2006-01"
	defaultRankLimit = 10
	maxRankLimit     = 100
	basisPoints      = 10_000
)

// Aggregator computes scoped roll-ups on demand.
type Aggregator struct {
	source   Source
	dir      Directory
	maxRange time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewAggregator constructs the aggregator. maxRange bounds the length of a
// statistics period; zero disables the bound.
func NewAggregator(source Source, dir Directory, maxRange time.Duration, now func() time.Time, logger *slog.Logger) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{source: source, dir: dir, maxRange: maxRange, now: now, logger: logger}
}

// CurrentMonth returns the period covering the current calendar month.
func (a *Aggregator) CurrentMonth() Period {
	now := a.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Period{Start: first.Format(dateLayout), End: first.AddDate(0, 1, -1).Format(dateLayout)}
}

// ValidatePeriod checks the dates and the maximum span.
func (a *Aggregator) ValidatePeriod(p Period) error {
	start, err := time.Parse(dateLayout, p.Start)
	if err != nil {
		return shared.FieldErrors{"start_date": "must match YYYY-MM-DD"}
	}
	end, err := time.Parse(dateLayout, p.End)
	if err != nil {
		return shared.FieldErrors{"end_date": "must match YYYY-MM-DD"}
	}
	if end.Before(start) {
		return shared.FieldErrors{"end_date": "must not be before start_date"}
	}
	if a.maxRange > 0 && end.Sub(start) > a.maxRange {
		return shared.FieldErrors{"end_date": fmt.Sprintf("period must not exceed %d days", int(a.maxRange.Hours()/24))}
	}
	return nil
}

// Aggregate computes totals, carrier shares, the store ranking and goal
// progress for the period within the identity's scope.
func (a *Aggregator) Aggregate(ctx context.Context, id access.Identity, p Period) (Report, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return Report{}, err
	}
	if err := a.ValidatePeriod(p); err != nil {
		return Report{}, err
	}
	filter := scope.Filter()
	q := Query{Filter: filter, From: p.Start, To: p.End}
	months := monthsBetween(p)

	var (
		cells  []Cell
		stores []org.Store
		goals  []org.StoreGoal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cells, err = a.source.Breakdown(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		stores, err = a.dir.ListStores(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		goals, err = a.dir.ListGoals(gctx, filter, months)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("aggregate statistics: %w", err)
	}

	var totals Totals
	carriers := make(map[string]Totals)
	byStore := make(map[int64]Totals)
	for _, c := range cells {
		totals.Add(c.Totals)
		ct := carriers[c.Carrier]
		ct.Add(c.Totals)
		carriers[c.Carrier] = ct
		st := byStore[c.StoreID]
		st.Add(c.Totals)
		byStore[c.StoreID] = st
	}
	ranking := rankStores(stores, byStore)

	return Report{
		Period: p,
		Summary: Summary{
			Totals:       totals,
			ByCarrier:    carrierShares(carriers, totals.Count),
			ByStoreRank:  ranking,
			GoalProgress: progress(goals, months, totals),
		},
	}, nil
}

// Ranking returns the top stores of the period, settlement descending with
// store id ascending as tie breaker. Stores without sales are included.
func (a *Aggregator) Ranking(ctx context.Context, id access.Identity, p Period, limit int) ([]StoreRank, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return nil, err
	}
	if err := a.ValidatePeriod(p); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRankLimit
	}
	if limit > maxRankLimit {
		limit = maxRankLimit
	}
	ranking, err := a.rank(ctx, Query{Filter: scope.Filter(), From: p.Start, To: p.End})
	if err != nil {
		return nil, err
	}
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking, nil
}

// Overview computes today's and this month's totals with scope metadata.
func (a *Aggregator) Overview(ctx context.Context, id access.Identity) (Overview, error) {
	scope, err := access.Resolve(id)
	if err != nil {
		return Overview{}, err
	}
	now := a.now()
	today := now.Format(dateLayout)
	month := a.CurrentMonth()
	filter := scope.Filter()

	var out Overview
	var stores []org.Store
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Today, err = a.source.Totals(gctx, Query{Filter: filter, From: today, To: today})
		return err
	})
	g.Go(func() error {
		var err error
		out.Month, err = a.source.Totals(gctx, Query{Filter: filter, From: month.Start, To: month.End})
		return err
	})
	g.Go(func() error {
		var err error
		stores, err = a.dir.ListStores(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, fmt.Errorf("dashboard overview: %w", err)
	}

	out.Meta = OverviewMeta{
		Scope:       scope.Kind().String(),
		Stores:      StoreCount{Total: len(stores)},
		GeneratedAt: now.UTC(),
	}
	if b, ok := scope.BranchID(); ok {
		out.Meta.BranchID = &b
	}
	if s, ok := scope.StoreID(); ok {
		out.Meta.StoreID = &s
	}
	return out, nil
}

func (a *Aggregator) rank(ctx context.Context, q Query) ([]StoreRank, error) {
	stores, err := a.dir.ListStores(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	totals, err := a.source.StoreTotals(ctx, q)
	if err != nil {
		return nil, err
	}
	return rankStores(stores, totals), nil
}

func rankStores(stores []org.Store, totals map[int64]Totals) []StoreRank {
	out := make([]StoreRank, 0, len(stores))
	for _, st := range stores {
		out = append(out, StoreRank{StoreID: st.ID, StoreName: st.Name, BranchID: st.BranchID, Totals: totals[st.ID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SettlementAmount != out[j].SettlementAmount {
			return out[i].SettlementAmount > out[j].SettlementAmount
		}
		return out[i].StoreID < out[j].StoreID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func carrierShares(carriers map[string]Totals, total int64) []CarrierShare {
	out := make([]CarrierShare, 0, len(carriers))
	for name, t := range carriers {
		out = append(out, CarrierShare{Carrier: name, Totals: t, ShareBP: ratioBP(t.Count, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Carrier < out[j].Carrier
	})
	return out
}

func progress(goals []org.StoreGoal, months []string, actual Totals) GoalProgress {
	gp := GoalProgress{Months: months, ActualCount: actual.Count, ActualAmount: actual.SettlementAmount}
	for _, g := range goals {
		gp.TargetCount += g.TargetCount
		gp.TargetAmount += g.TargetAmount
	}
	gp.CountProgressBP = ratioBP(gp.ActualCount, gp.TargetCount)
	gp.AmountProgressBP = ratioBP(gp.ActualAmount, gp.TargetAmount)
	return gp
}

// ratioBP returns part/whole in basis points, zero when whole is not positive.
func ratioBP(part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	if part <= math.MaxInt64/basisPoints && part >= math.MinInt64/basisPoints {
		return part * basisPoints / whole
	}
	r := new(big.Int).Mul(big.NewInt(part), big.NewInt(basisPoints))
	r.Quo(r, big.NewInt(whole))
	if !r.IsInt64() {
		return math.MaxInt64
	}
	return r.Int64()
}

func monthsBetween(p Period) []string {
	start, _ := time.Parse(dateLayout, p.Start)
	end, _ := time.Parse(dateLayout, p.End)
	var out []string
	for m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(end); m = m.AddDate(0, 1, 0) {
		out = append(out, m.Format(monthLayout))
	}
	return out
}
