package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
)

type MySQLProductRepo struct {
	q    dbtx
	lock string
}

func NewMySQLProductRepo(db *sql.DB) *MySQLProductRepo { return &MySQLProductRepo{q: db} }

const productColumns = `id,name,description,category,price,stock_quantity,status,created_at,updated_at`

func (r *MySQLProductRepo) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.q.ExecContext(ctx, `
INSERT INTO products (`+productColumns+`)
VALUES (?,?,?,?,?,?,?,?,?)
`, p.ID, p.Name, p.Description, p.Category, p.Price, p.StockQuantity, string(p.Status), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *MySQLProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id=?`+r.lock, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &usecase.NotFoundError{Kind: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *MySQLProductRepo) Update(ctx context.Context, p *domain.Product) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE products
SET name=?, description=?, category=?, price=?, stock_quantity=?, status=?, updated_at=?
WHERE id=?`,
		p.Name, p.Description, p.Category, p.Price, p.StockQuantity, string(p.Status), p.UpdatedAt.UTC(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	rows, err := rowsAffected(res)
	if err != nil {
		return err
	}
	// MySQL reports changed rows, so an identical write also lands here.
	if rows == 0 {
		if _, err := r.GetByID(ctx, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// AdjustStock applies delta only if the result stays non-negative. The guard
// lives in the WHERE clause so two writers can never both pass it.
func (r *MySQLProductRepo) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	res, err := r.q.ExecContext(ctx, `
UPDATE products
SET stock_quantity = stock_quantity + ?, updated_at = ?
WHERE id = ? AND stock_quantity + ? >= 0`,
		delta, time.Now().UTC(), id, delta,
	)
	if err != nil {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}
	rows, err := rowsAffected(res)
	if err != nil {
		return nil, err
	}

	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, &usecase.InsufficientStockError{ProductID: id, Requested: -delta, Available: p.StockQuantity}
	}
	return p, nil
}

var productSorts = map[usecase.ProductSort]string{
	usecase.SortNewest:    "created_at DESC, id",
	usecase.SortPriceAsc:  "price ASC, id",
	usecase.SortPriceDesc: "price DESC, id",
	usecase.SortName:      "name ASC, id",
}

func (r *MySQLProductRepo) Search(ctx context.Context, f usecase.ProductFilter) ([]*domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Query != "" {
		like := "%" + escapeLike(strings.ToLower(f.Query)) + "%"
		where = append(where, `(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')`)
		args = append(args, like, like)
	}
	if f.Category != "" {
		where = append(where, "LOWER(category) = ?")
		args = append(args, strings.ToLower(f.Category))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.MinPrice != nil {
		where = append(where, "price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "price <= ?")
		args = append(args, *f.MaxPrice)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + productColumns + " FROM products")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	order, ok := productSorts[f.Sort]
	if !ok {
		order = productSorts[usecase.SortNewest]
	}
	sb.WriteString(" ORDER BY " + order)
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	out := []*domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *MySQLProductRepo) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	rows, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if rows == 0 {
		return &usecase.NotFoundError{Kind: "product", ID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (*domain.Product, error) {
	var (
		p      domain.Product
		status string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.StockQuantity, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = domain.ProductStatus(status)
	return &p, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string { return likeEscaper.Replace(s) }

var _ usecase.ProductRepo = (*MySQLProductRepo)(nil)
