package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mobilenet-retail/backoffice/internal/platform/db"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// saleColumns are read with the alias x for the sales table.
const saleColumns = `x.id, x.store_id, x.branch_id, x.sale_date::text, x.carrier, x.activation_type, x.model_name,
	x.base_price, x.verbal1, x.verbal2, x.grade_amount, x.addon_amount, x.cash_received,
	x.usim_fee, x.new_mnp_discount, x.deduction, x.payback,
	x.settlement_amount, x.margin_before_tax, x.tax, x.margin_after_tax,
	x.version, x.created_by, x.created_at, x.updated_at`

func scanSale(row pgx.Row, extra ...any) (sales.Record, error) {
	var r sales.Record
	dest := []any{
		&r.ID, &r.StoreID, &r.BranchID, &r.SaleDate, &r.Carrier, &r.ActivationType, &r.ModelName,
		&r.BasePrice, &r.Verbal1, &r.Verbal2, &r.GradeAmount, &r.AddonAmount, &r.CashReceived,
		&r.UsimFee, &r.NewMNPDiscount, &r.Deduction, &r.Payback,
		&r.SettlementAmount, &r.MarginBeforeTax, &r.Tax, &r.MarginAfterTax,
		&r.Version, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return r, err
}

// List implements sales.Repository. The returned branch id is the store's
// current branch.
func (s *Store) List(ctx context.Context, c sales.Criteria) ([]sales.Record, int, error) {
	w := &where{}
	w.scope(c.Filter, "s.id", "s.branch_id")
	w.dates("x.sale_date", c.From, c.To)
	from := ` FROM sales x JOIN stores s ON s.id = x.store_id` + w.String()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sales: %w", err)
	}

	sql := `SELECT ` + saleColumns + `, s.branch_id` + from + ` ORDER BY x.sale_date DESC, x.id DESC`
	args := w.args
	if c.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", c.Limit)
	}
	if c.Offset > 0 {
		sql += fmt.Sprintf(" OFFSET %d", c.Offset)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]sales.Record, 0)
	for rows.Next() {
		var current int64
		r, err := scanSale(rows, &current)
		if err != nil {
			return nil, 0, err
		}
		r.BranchID = current
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Get implements sales.Repository.
func (s *Store) Get(ctx context.Context, id int64) (sales.Record, int64, error) {
	var current int64
	r, err := scanSale(s.pool.QueryRow(ctx, `SELECT `+saleColumns+`, s.branch_id
		FROM sales x JOIN stores s ON s.id = x.store_id WHERE x.id = $1`, id), &current)
	if err != nil {
		return sales.Record{}, 0, notFound(err, "sale", id)
	}
	r.BranchID = current
	return r, current, nil
}

// Delete implements sales.Repository.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %d", shared.ErrNotFound, id)
	}
	return nil
}

// WithTx implements sales.Repository.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx sales.TxRepository) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &salesTx{q: tx})
	})
}

type salesTx struct {
	q querier
}

// StoreBranches share-locks the stores so they cannot move before commit.
func (t *salesTx) StoreBranches(ctx context.Context, ids []int64) (map[int64]int64, error) {
	return storeBranches(ctx, t.q, ids, true)
}

func (t *salesTx) LockForUpdate(ctx context.Context, ids []int64) (map[int64]sales.Record, error) {
	out := make(map[int64]sales.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := t.q.Query(ctx, `SELECT `+saleColumns+` FROM sales x WHERE x.id = ANY($1) ORDER BY x.id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

func (t *salesTx) Insert(ctx context.Context, r sales.Record) (sales.Record, error) {
	err := t.q.QueryRow(ctx, `
		INSERT INTO sales (store_id, branch_id, sale_date, carrier, activation_type, model_name,
			base_price, verbal1, verbal2, grade_amount, addon_amount, cash_received,
			usim_fee, new_mnp_discount, deduction, payback,
			settlement_amount, margin_before_tax, tax, margin_after_tax,
			version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, 1, $21, $22, $23)
		RETURNING id, version`,
		r.StoreID, r.BranchID, r.SaleDate, r.Carrier, r.ActivationType, r.ModelName,
		r.BasePrice, r.Verbal1, r.Verbal2, r.GradeAmount, r.AddonAmount, r.CashReceived,
		r.UsimFee, r.NewMNPDiscount, r.Deduction, r.Payback,
		r.SettlementAmount, r.MarginBeforeTax, r.Tax, r.MarginAfterTax,
		r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID, &r.Version)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return sales.Record{}, shared.FieldErrors{"store_id": fmt.Sprintf("store %d does not exist", r.StoreID)}
		}
		return sales.Record{}, err
	}
	return r, nil
}

func (t *salesTx) Update(ctx context.Context, r sales.Record) (sales.Record, error) {
	err := t.q.QueryRow(ctx, `
		UPDATE sales SET store_id = $2, branch_id = $3, sale_date = $4::date, carrier = $5,
			activation_type = $6, model_name = $7,
			base_price = $8, verbal1 = $9, verbal2 = $10, grade_amount = $11, addon_amount = $12,
			cash_received = $13, usim_fee = $14, new_mnp_discount = $15, deduction = $16, payback = $17,
			settlement_amount = $18, margin_before_tax = $19, tax = $20, margin_after_tax = $21,
			version = version + 1, updated_at = $22
		WHERE id = $1
		RETURNING version, created_by, created_at`,
		r.ID, r.StoreID, r.BranchID, r.SaleDate, r.Carrier, r.ActivationType, r.ModelName,
		r.BasePrice, r.Verbal1, r.Verbal2, r.GradeAmount, r.AddonAmount,
		r.CashReceived, r.UsimFee, r.NewMNPDiscount, r.Deduction, r.Payback,
		r.SettlementAmount, r.MarginBeforeTax, r.Tax, r.MarginAfterTax,
		r.UpdatedAt,
	).Scan(&r.Version, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		return sales.Record{}, notFound(err, "sale", r.ID)
	}
	return r, nil
}

var _ sales.Repository = (*Store)(nil)
