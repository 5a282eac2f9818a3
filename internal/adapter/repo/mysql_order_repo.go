package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
)

type MySQLOrderRepo struct {
	q    dbtx
	db   *sql.DB // set outside a transaction; multi-statement writes open their own
	lock string
}

func NewMySQLOrderRepo(db *sql.DB) *MySQLOrderRepo { return &MySQLOrderRepo{q: db, db: db} }

// atomic runs fn in the caller's transaction, or in a fresh one when there is none.
func (r *MySQLOrderRepo) atomic(ctx context.Context, fn func(q dbtx) error) error {
	if r.db == nil {
		return fn(r.q)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *MySQLOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("encode shipping: %w", err)
	}
	var payment any
	if len(o.Payment) > 0 {
		payment = string(o.Payment)
	}
	if o.Version == 0 {
		o.Version = 1
	}

	return r.atomic(ctx, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `
INSERT INTO orders (id,user_id,status,total_amount,shipping_json,note,cancel_reason,payment_json,version,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
`, o.ID, o.UserID, string(o.Status), o.TotalAmount, string(shipping), o.Note, o.CancelReason, payment,
			o.Version, o.CreatedAt.UTC(), o.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for i, li := range o.Items {
			if _, err := q.ExecContext(ctx, `
INSERT INTO order_items (order_id,line_no,product_id,name,quantity,unit_price)
VALUES (?,?,?,?,?,?)
`, o.ID, i, li.ProductID, li.Name, li.Quantity, li.UnitPrice); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
}

const orderColumns = `id,user_id,status,total_amount,shipping_json,note,cancel_reason,payment_json,version,created_at,updated_at`

func (r *MySQLOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`+r.lock, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &usecase.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o.Items, err = r.items(ctx, id); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *MySQLOrderRepo) List(ctx context.Context, f usecase.OrderFilter) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	// items are loaded after the cursor is closed; a single-connection pool
	// cannot serve a second query while rows are open.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if o.Items, err = r.items(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *MySQLOrderRepo) items(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	rows, err := r.q.QueryContext(ctx, `
SELECT product_id,name,quantity,unit_price FROM order_items WHERE order_id=? ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var out []domain.LineItem
	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ProductID, &li.Name, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-swap on version: rows == 0 means either the
// order is gone or someone else wrote first.
func (r *MySQLOrderRepo) UpdateStatus(ctx context.Context, o *domain.Order, expectedVersion int64) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE orders
SET status = ?, cancel_reason = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`,
		string(o.Status), o.CancelReason, o.UpdatedAt.UTC(), o.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	rows, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if rows == 0 {
		return r.missOrConflict(ctx, o.ID)
	}
	o.Version = expectedVersion + 1
	return nil
}

func (r *MySQLOrderRepo) Delete(ctx context.Context, id string, expectedVersion int64) error {
	return r.atomic(ctx, func(q dbtx) error {
		res, err := q.ExecContext(ctx, `DELETE FROM orders WHERE id=? AND version=?`, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		rows, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if rows == 0 {
			return (&MySQLOrderRepo{q: q}).missOrConflict(ctx, id)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM order_items WHERE order_id=?`, id); err != nil {
			return fmt.Errorf("delete order items: %w", err)
		}
		return nil
	})
}

func (r *MySQLOrderRepo) missOrConflict(ctx context.Context, id string) error {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE id=?`, id).Scan(&n); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if n == 0 {
		return &usecase.NotFoundError{Kind: "order", ID: id}
	}
	return usecase.ErrVersionConflict
}

func (r *MySQLOrderRepo) CountByProduct(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT order_id) FROM order_items WHERE product_id=?`, productID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders by product: %w", err)
	}
	return n, nil
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o        domain.Order
		status   string
		shipping []byte
		payment  []byte
	)
	if err := s.Scan(&o.ID, &o.UserID, &status, &o.TotalAmount, &shipping, &o.Note, &o.CancelReason,
		&payment, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("decode shipping: %w", err)
	}
	if len(payment) > 0 {
		o.Payment = json.RawMessage(payment)
	}
	return &o, nil
}

var _ usecase.OrderRepo = (*MySQLOrderRepo)(nil)
