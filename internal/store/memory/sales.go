package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

func (s *Store) visibleLocked(c sales.Criteria) []sales.Record {
	out := make([]sales.Record, 0)
	for _, rec := range s.sales {
		st, ok := s.stores[rec.StoreID]
		if !ok || !c.Filter.Matches(rec.StoreID, st.BranchID) {
			continue
		}
		if c.From != "" && rec.SaleDate < c.From {
			continue
		}
		if c.To != "" && rec.SaleDate > c.To {
			continue
		}
		rec.BranchID = st.BranchID
		out = append(out, rec)
	}
	return out
}

// List implements sales.Repository. Newest sale dates come first.
func (s *Store) List(_ context.Context, c sales.Criteria) ([]sales.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.visibleLocked(c)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SaleDate != rows[j].SaleDate {
			return rows[i].SaleDate > rows[j].SaleDate
		}
		return rows[i].ID > rows[j].ID
	})
	total := len(rows)
	if c.Offset < 0 || c.Offset >= total {
		return []sales.Record{}, total, nil
	}
	end := total
	if c.Limit > 0 && c.Limit < total-c.Offset {
		end = c.Offset + c.Limit
	}
	return rows[c.Offset:end], total, nil
}

// Get implements sales.Repository.
func (s *Store) Get(_ context.Context, id int64) (sales.Record, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sales[id]
	if !ok {
		return sales.Record{}, 0, fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	st, ok := s.stores[rec.StoreID]
	if !ok {
		return sales.Record{}, 0, fmt.Errorf("%w: store %d", shared.ErrNotFound, rec.StoreID)
	}
	rec.BranchID = st.BranchID
	return rec, st.BranchID, nil
}

// Delete implements sales.Repository.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[id]; !ok {
		return fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	delete(s.sales, id)
	return nil
}

// Count returns the number of stored sales.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sales)
}

// WithTx implements sales.Repository. Writes are staged and applied only
// when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx sales.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &salesTx{store: s, staged: make(map[int64]sales.Record), nextID: s.nextSale}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, rec := range tx.staged {
		s.sales[id] = rec
	}
	s.nextSale = tx.nextID
	return nil
}

type salesTx struct {
	store  *Store
	staged map[int64]sales.Record
	nextID int64
}

func (t *salesTx) StoreBranches(_ context.Context, ids []int64) (map[int64]int64, error) {
	return t.store.storeBranchesLocked(ids), nil
}

func (t *salesTx) LockForUpdate(_ context.Context, ids []int64) (map[int64]sales.Record, error) {
	out := make(map[int64]sales.Record, len(ids))
	for _, id := range ids {
		if rec, ok := t.staged[id]; ok {
			out[id] = rec
			continue
		}
		if rec, ok := t.store.sales[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (t *salesTx) Insert(_ context.Context, rec sales.Record) (sales.Record, error) {
	if _, ok := t.store.stores[rec.StoreID]; !ok {
		return sales.Record{}, shared.FieldErrors{"store_id": fmt.Sprintf("store %d does not exist", rec.StoreID)}
	}
	t.nextID++
	rec.ID = t.nextID
	rec.Version = 1
	t.staged[rec.ID] = rec
	return rec, nil
}

func (t *salesTx) Update(_ context.Context, rec sales.Record) (sales.Record, error) {
	cur, ok := t.staged[rec.ID]
	if !ok {
		cur, ok = t.store.sales[rec.ID]
	}
	if !ok {
		return sales.Record{}, fmt.Errorf("%w: sale %d", shared.ErrNotFound, rec.ID)
	}
	rec.Version = cur.Version + 1
	rec.CreatedAt = cur.CreatedAt
	rec.CreatedBy = cur.CreatedBy
	t.staged[rec.ID] = rec
	return rec, nil
}
