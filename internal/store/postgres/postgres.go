// Package postgres implements the repository ports on PostgreSQL via pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

//go:embed schema.sql
var schema string

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the back office in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	return nil
}

// StoreBranches implements access.StoreLocator.
func (s *Store) StoreBranches(ctx context.Context, ids []int64) (map[int64]int64, error) {
	return storeBranches(ctx, s.pool, ids, false)
}

func storeBranches(ctx context.Context, q querier, ids []int64, share bool) (map[int64]int64, error) {
	out := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sql := `SELECT id, branch_id FROM stores WHERE id = ANY($1)`
	if share {
		sql += ` ORDER BY id FOR SHARE`
	}
	rows, err := q.Query(ctx, sql, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, branchID int64
		if err := rows.Scan(&id, &branchID); err != nil {
			return nil, err
		}
		out[id] = branchID
	}
	return out, rows.Err()
}

// where accumulates SQL conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) add(cond string) {
	w.conds = append(w.conds, cond)
}

// scope restricts rows to the filter. storeCol and branchCol must refer to
// the stores table so branch filters follow the store's current branch.
func (w *where) scope(f access.Filter, storeCol, branchCol string) {
	if !f.Valid() {
		w.add("FALSE")
		return
	}
	if id, ok := f.StoreID(); ok {
		w.add(storeCol + " = " + w.arg(id))
	}
	if id, ok := f.BranchID(); ok {
		w.add(branchCol + " = " + w.arg(id))
	}
}

func (w *where) dates(col, from, to string) {
	if from != "" {
		w.add(col + " >= " + w.arg(from) + "::date")
	}
	if to != "" {
		w.add(col + " <= " + w.arg(to) + "::date")
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", shared.ErrNotFound, what, id)
	}
	return err
}
