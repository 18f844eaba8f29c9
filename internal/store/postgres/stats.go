package postgres

import (
	"context"

	"github.com/mobilenet-retail/backoffice/internal/stats"
)

const totalsColumns = `COUNT(*), COALESCE(SUM(x.settlement_amount), 0),
	COALESCE(SUM(x.margin_before_tax), 0), COALESCE(SUM(x.margin_after_tax), 0)`

func statsWhere(q stats.Query) *where {
	w := &where{}
	w.scope(q.Filter, "s.id", "s.branch_id")
	w.dates("x.sale_date", q.From, q.To)
	return w
}

// Totals implements stats.Source.
func (s *Store) Totals(ctx context.Context, q stats.Query) (stats.Totals, error) {
	w := statsWhere(q)
	var t stats.Totals
	err := s.pool.QueryRow(ctx, `SELECT `+totalsColumns+`
		FROM sales x JOIN stores s ON s.id = x.store_id`+w.String(), w.args...).
		Scan(&t.Count, &t.SettlementAmount, &t.MarginBeforeTax, &t.MarginAfterTax)
	return t, err
}

// Breakdown implements stats.Source.
func (s *Store) Breakdown(ctx context.Context, q stats.Query) ([]stats.Cell, error) {
	w := statsWhere(q)
	rows, err := s.pool.Query(ctx, `SELECT x.store_id, x.carrier, `+totalsColumns+`
		FROM sales x JOIN stores s ON s.id = x.store_id`+w.String()+`
		GROUP BY x.store_id, x.carrier`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []stats.Cell
	for rows.Next() {
		var c stats.Cell
		if err := rows.Scan(&c.StoreID, &c.Carrier, &c.Count, &c.SettlementAmount, &c.MarginBeforeTax, &c.MarginAfterTax); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StoreTotals implements stats.Source.
func (s *Store) StoreTotals(ctx context.Context, q stats.Query) (map[int64]stats.Totals, error) {
	w := statsWhere(q)
	rows, err := s.pool.Query(ctx, `SELECT x.store_id, `+totalsColumns+`
		FROM sales x JOIN stores s ON s.id = x.store_id`+w.String()+`
		GROUP BY x.store_id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]stats.Totals)
	for rows.Next() {
		var storeID int64
		var t stats.Totals
		if err := rows.Scan(&storeID, &t.Count, &t.SettlementAmount, &t.MarginBeforeTax, &t.MarginAfterTax); err != nil {
			return nil, err
		}
		out[storeID] = t
	}
	return out, rows.Err()
}

var _ stats.Source = (*Store)(nil)
