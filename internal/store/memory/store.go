// Package memory is an in-process implementation of every repository port.
// It backs development mode and tests when no Postgres DSN is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

type goalKey struct {
	storeID int64
	month   string
}

// Store keeps all state behind one RWMutex. Sales transactions hold the write
// lock until they commit, so readers never observe a partial batch.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	branches map[int64]org.Branch
	stores   map[int64]org.Store
	goals    map[goalKey]org.StoreGoal
	sales    map[int64]sales.Record
	users    map[int64]auth.User
	sessions map[string]int64
	idem     map[string]time.Time
	audit    []shared.AuditEntry

	nextBranch int64
	nextStore  int64
	nextSale   int64
	nextUser   int64
}

// New returns an empty store. A nil clock uses time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		branches: make(map[int64]org.Branch),
		stores:   make(map[int64]org.Store),
		goals:    make(map[goalKey]org.StoreGoal),
		sales:    make(map[int64]sales.Record),
		users:    make(map[int64]auth.User),
		sessions: make(map[string]int64),
		idem:     make(map[string]time.Time),
	}
}

// StoreBranches implements access.StoreLocator.
func (s *Store) StoreBranches(_ context.Context, ids []int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storeBranchesLocked(ids), nil
}

func (s *Store) storeBranchesLocked(ids []int64) map[int64]int64 {
	out := make(map[int64]int64, len(ids))
	for _, id := range ids {
		if st, ok := s.stores[id]; ok {
			out[id] = st.BranchID
		}
	}
	return out
}

// ListBranches implements org.Repository.
func (s *Store) ListBranches(_ context.Context, ids []int64) ([]org.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]org.Branch, 0, len(s.branches))
	if ids == nil {
		for _, b := range s.branches {
			out = append(out, b)
		}
	} else {
		for _, id := range ids {
			if b, ok := s.branches[id]; ok {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetBranch implements org.Repository.
func (s *Store) GetBranch(_ context.Context, id int64) (org.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[id]
	if !ok {
		return org.Branch{}, fmt.Errorf("%w: branch %d", shared.ErrNotFound, id)
	}
	return b, nil
}

// CreateBranch implements org.Repository.
func (s *Store) CreateBranch(_ context.Context, b org.Branch) (org.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codeTakenLocked(b.Code, 0) {
		return org.Branch{}, fmt.Errorf("%w: branch code %s already exists", shared.ErrConflict, b.Code)
	}
	s.nextBranch++
	now := s.now().UTC()
	b.ID, b.CreatedAt, b.UpdatedAt = s.nextBranch, now, now
	s.branches[b.ID] = b
	return b, nil
}

// UpdateBranch implements org.Repository.
func (s *Store) UpdateBranch(_ context.Context, b org.Branch) (org.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.branches[b.ID]
	if !ok {
		return org.Branch{}, fmt.Errorf("%w: branch %d", shared.ErrNotFound, b.ID)
	}
	if s.codeTakenLocked(b.Code, b.ID) {
		return org.Branch{}, fmt.Errorf("%w: branch code %s already exists", shared.ErrConflict, b.Code)
	}
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = s.now().UTC()
	s.branches[b.ID] = b
	return b, nil
}

func (s *Store) codeTakenLocked(code string, except int64) bool {
	for _, b := range s.branches {
		if b.Code == code && b.ID != except {
			return true
		}
	}
	return false
}

// ListStores implements org.Repository.
func (s *Store) ListStores(_ context.Context, filter access.Filter) ([]org.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]org.Store, 0)
	for _, st := range s.stores {
		if filter.Matches(st.ID, st.BranchID) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetStore implements org.Repository.
func (s *Store) GetStore(_ context.Context, id int64) (org.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[id]
	if !ok {
		return org.Store{}, fmt.Errorf("%w: store %d", shared.ErrNotFound, id)
	}
	return st, nil
}

// CreateStore implements org.Repository.
func (s *Store) CreateStore(_ context.Context, st org.Store) (org.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[st.BranchID]; !ok {
		return org.Store{}, shared.FieldErrors{"branch_id": fmt.Sprintf("branch %d does not exist", st.BranchID)}
	}
	s.nextStore++
	now := s.now().UTC()
	st.ID, st.CreatedAt, st.UpdatedAt = s.nextStore, now, now
	s.stores[st.ID] = st
	return st, nil
}

// UpdateStore implements org.Repository.
func (s *Store) UpdateStore(_ context.Context, st org.Store) (org.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.stores[st.ID]
	if !ok {
		return org.Store{}, fmt.Errorf("%w: store %d", shared.ErrNotFound, st.ID)
	}
	if _, ok := s.branches[st.BranchID]; !ok {
		return org.Store{}, shared.FieldErrors{"branch_id": fmt.Sprintf("branch %d does not exist", st.BranchID)}
	}
	st.CreatedAt = cur.CreatedAt
	st.UpdatedAt = s.now().UTC()
	s.stores[st.ID] = st
	return st, nil
}

// UpsertGoal implements org.Repository.
func (s *Store) UpsertGoal(_ context.Context, g org.StoreGoal) (org.StoreGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[g.StoreID]; !ok {
		return org.StoreGoal{}, fmt.Errorf("%w: store %d", shared.ErrNotFound, g.StoreID)
	}
	s.goals[goalKey{g.StoreID, g.Month}] = g
	return g, nil
}

// ListGoals implements org.Repository.
func (s *Store) ListGoals(_ context.Context, filter access.Filter, months []string) ([]org.StoreGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(months))
	for _, m := range months {
		wanted[m] = true
	}
	out := make([]org.StoreGoal, 0)
	for k, g := range s.goals {
		st, ok := s.stores[k.storeID]
		if !ok || !wanted[k.month] || !filter.Matches(st.ID, st.BranchID) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

var (
	_ org.Repository   = (*Store)(nil)
	_ sales.Repository = (*Store)(nil)
	_ auth.Repository  = (*Store)(nil)
)
