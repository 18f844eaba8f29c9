package memory

import (
	"context"

	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/stats"
)

func totalsOf(rec sales.Record) stats.Totals {
	return stats.Totals{
		Count:            1,
		SettlementAmount: rec.SettlementAmount,
		MarginBeforeTax:  rec.MarginBeforeTax,
		MarginAfterTax:   rec.MarginAfterTax,
	}
}

func criteria(q stats.Query) sales.Criteria {
	return sales.Criteria{Filter: q.Filter, From: q.From, To: q.To}
}

// Totals implements stats.Source.
func (s *Store) Totals(_ context.Context, q stats.Query) (stats.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t stats.Totals
	for _, rec := range s.visibleLocked(criteria(q)) {
		t.Add(totalsOf(rec))
	}
	return t, nil
}

// Breakdown implements stats.Source.
func (s *Store) Breakdown(_ context.Context, q stats.Query) ([]stats.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type cellKey struct {
		store   int64
		carrier string
	}
	idx := make(map[cellKey]int)
	var out []stats.Cell
	for _, rec := range s.visibleLocked(criteria(q)) {
		k := cellKey{rec.StoreID, rec.Carrier}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, stats.Cell{StoreID: rec.StoreID, Carrier: rec.Carrier})
		}
		out[i].Add(totalsOf(rec))
	}
	return out, nil
}

// StoreTotals implements stats.Source.
func (s *Store) StoreTotals(_ context.Context, q stats.Query) (map[int64]stats.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]stats.Totals)
	for _, rec := range s.visibleLocked(criteria(q)) {
		t := out[rec.StoreID]
		t.Add(totalsOf(rec))
		out[rec.StoreID] = t
	}
	return out, nil
}

var _ stats.Source = (*Store)(nil)
