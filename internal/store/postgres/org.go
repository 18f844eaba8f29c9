package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/platform/db"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

const branchColumns = `id, code, name, manager_name, created_at, updated_at`

func scanBranch(row pgx.Row) (org.Branch, error) {
	var b org.Branch
	err := row.Scan(&b.ID, &b.Code, &b.Name, &b.ManagerName, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// ListBranches implements org.Repository. A nil ids slice lists every branch.
func (s *Store) ListBranches(ctx context.Context, ids []int64) ([]org.Branch, error) {
	sql := `SELECT ` + branchColumns + ` FROM branches`
	var args []any
	if ids != nil {
		sql += ` WHERE id = ANY($1)`
		args = append(args, ids)
	}
	rows, err := s.pool.Query(ctx, sql+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]org.Branch, 0)
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBranch implements org.Repository.
func (s *Store) GetBranch(ctx context.Context, id int64) (org.Branch, error) {
	b, err := scanBranch(s.pool.QueryRow(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = $1`, id))
	if err != nil {
		return org.Branch{}, notFound(err, "branch", id)
	}
	return b, nil
}

// CreateBranch implements org.Repository.
func (s *Store) CreateBranch(ctx context.Context, b org.Branch) (org.Branch, error) {
	out, err := scanBranch(s.pool.QueryRow(ctx, `
		INSERT INTO branches (code, name, manager_name)
		VALUES ($1, $2, $3)
		RETURNING `+branchColumns, b.Code, b.Name, b.ManagerName))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return org.Branch{}, fmt.Errorf("%w: branch code %s already exists", shared.ErrConflict, b.Code)
		}
		return org.Branch{}, err
	}
	return out, nil
}

// UpdateBranch implements org.Repository.
func (s *Store) UpdateBranch(ctx context.Context, b org.Branch) (org.Branch, error) {
	out, err := scanBranch(s.pool.QueryRow(ctx, `
		UPDATE branches SET code = $2, name = $3, manager_name = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+branchColumns, b.ID, b.Code, b.Name, b.ManagerName))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return org.Branch{}, fmt.Errorf("%w: branch code %s already exists", shared.ErrConflict, b.Code)
		}
		return org.Branch{}, notFound(err, "branch", b.ID)
	}
	return out, nil
}

const storeColumns = `id, branch_id, name, owner_name, phone, created_at, updated_at`

func scanStore(row pgx.Row) (org.Store, error) {
	var st org.Store
	err := row.Scan(&st.ID, &st.BranchID, &st.Name, &st.OwnerName, &st.Phone, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

// ListStores implements org.Repository.
func (s *Store) ListStores(ctx context.Context, filter access.Filter) ([]org.Store, error) {
	w := &where{}
	w.scope(filter, "id", "branch_id")
	rows, err := s.pool.Query(ctx, `SELECT `+storeColumns+` FROM stores`+w.String()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]org.Store, 0)
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetStore implements org.Repository.
func (s *Store) GetStore(ctx context.Context, id int64) (org.Store, error) {
	st, err := scanStore(s.pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
	if err != nil {
		return org.Store{}, notFound(err, "store", id)
	}
	return st, nil
}

// CreateStore implements org.Repository.
func (s *Store) CreateStore(ctx context.Context, st org.Store) (org.Store, error) {
	out, err := scanStore(s.pool.QueryRow(ctx, `
		INSERT INTO stores (branch_id, name, owner_name, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING `+storeColumns, st.BranchID, st.Name, st.OwnerName, st.Phone))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return org.Store{}, shared.FieldErrors{"branch_id": fmt.Sprintf("branch %d does not exist", st.BranchID)}
		}
		return org.Store{}, err
	}
	return out, nil
}

// UpdateStore implements org.Repository.
func (s *Store) UpdateStore(ctx context.Context, st org.Store) (org.Store, error) {
	out, err := scanStore(s.pool.QueryRow(ctx, `
		UPDATE stores SET branch_id = $2, name = $3, owner_name = $4, phone = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+storeColumns, st.ID, st.BranchID, st.Name, st.OwnerName, st.Phone))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return org.Store{}, shared.FieldErrors{"branch_id": fmt.Sprintf("branch %d does not exist", st.BranchID)}
		}
		return org.Store{}, notFound(err, "store", st.ID)
	}
	return out, nil
}

// UpsertGoal implements org.Repository.
func (s *Store) UpsertGoal(ctx context.Context, g org.StoreGoal) (org.StoreGoal, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO store_goals (store_id, month, target_count, target_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id, month) DO UPDATE
		SET target_count = EXCLUDED.target_count, target_amount = EXCLUDED.target_amount`,
		g.StoreID, g.Month, g.TargetCount, g.TargetAmount)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return org.StoreGoal{}, fmt.Errorf("%w: store %d", shared.ErrNotFound, g.StoreID)
		}
		return org.StoreGoal{}, err
	}
	return g, nil
}

// ListGoals implements org.Repository.
func (s *Store) ListGoals(ctx context.Context, filter access.Filter, months []string) ([]org.StoreGoal, error) {
	w := &where{}
	w.scope(filter, "s.id", "s.branch_id")
	w.add("g.month = ANY(" + w.arg(months) + ")")
	rows, err := s.pool.Query(ctx, `
		SELECT g.store_id, g.month, g.target_count, g.target_amount
		FROM store_goals g JOIN stores s ON s.id = g.store_id`+w.String()+`
		ORDER BY g.store_id, g.month`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]org.StoreGoal, 0)
	for rows.Next() {
		var g org.StoreGoal
		if err := rows.Scan(&g.StoreID, &g.Month, &g.TargetCount, &g.TargetAmount); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

var _ org.Repository = (*Store)(nil)
