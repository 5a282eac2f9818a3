package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Catalog struct {
	store Store
	now   func() time.Time
}

func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

type CreateProductInput struct {
	Name          string
	Description   string
	Category      string
	Price         decimal.Decimal
	StockQuantity int
	Inactive      bool
}

func (c *Catalog) CreateProduct(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	status := domain.ProductActive
	if in.Inactive {
		status = domain.ProductInactive
	}
	now := c.now().UTC()
	p := &domain.Product{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Category:      strings.TrimSpace(in.Category),
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p.Status = domain.DeriveProductStatus(status, p.StockQuantity)
	if err := p.Validate(); err != nil {
		return nil, entityInvalid(err)
	}
	if err := c.store.Products().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	logging.FromCtx(ctx).InfoContext(ctx, "product created", "product_id", p.ID, "stock", p.StockQuantity)
	return p, nil
}

// UpdateProductInput carries a partial update; nil fields are left alone.
// Active toggles between active and inactive; out_of_stock is never set directly.
type UpdateProductInput struct {
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
	Active      *bool
}

func (c *Catalog) UpdateProduct(ctx context.Context, id string, in UpdateProductInput) (*domain.Product, error) {
	var out *domain.Product
	err := c.store.WithinTx(ctx, func(tx Tx) error {
		p, err := tx.Products().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Category != nil {
			p.Category = strings.TrimSpace(*in.Category)
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		if in.Active != nil {
			base := domain.ProductInactive
			if *in.Active {
				base = domain.ProductActive
			}
			p.Status = domain.DeriveProductStatus(base, p.StockQuantity)
		}
		if err := p.Validate(); err != nil {
			return entityInvalid(err)
		}
		p.UpdatedAt = c.now().UTC()
		if err := tx.Products().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetStock is the admin's direct stock edit. Status is re-derived, never taken from input.
func (c *Catalog) SetStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if quantity < 0 {
		return nil, invalid("stockQuantity", "must not be negative")
	}
	var out *domain.Product
	err := c.store.WithinTx(ctx, func(tx Tx) error {
		p, err := tx.Products().GetByID(ctx, id)
		if err != nil {
			return err
		}
		p.StockQuantity = quantity
		p.Status = domain.DeriveProductStatus(p.Status, quantity)
		p.UpdatedAt = c.now().UTC()
		if err := tx.Products().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromCtx(ctx).InfoContext(ctx, "product stock set", "product_id", id, "stock", quantity, "status", out.Status)
	return out, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return c.store.Products().GetByID(ctx, id)
}

func (c *Catalog) SearchProducts(ctx context.Context, f ProductFilter) ([]*domain.Product, error) {
	f.Query = strings.TrimSpace(f.Query)
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown product status %q", f.Status))
	}
	switch f.Sort {
	case "", SortNewest, SortPriceAsc, SortPriceDesc, SortName:
	default:
		return nil, invalid("sort", fmt.Sprintf("unknown sort %q", f.Sort))
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, invalid("minPrice", "greater than maxPrice")
	}
	f.Limit, f.Offset = page(f.Limit, f.Offset)
	return c.store.Products().Search(ctx, f)
}

// DeleteProduct refuses while any order still references the product.
func (c *Catalog) DeleteProduct(ctx context.Context, id string) error {
	return c.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.Products().GetByID(ctx, id); err != nil {
			return err
		}
		n, err := tx.Orders().CountByProduct(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: product %q is referenced by %d orders", ErrInUse, id, n)
		}
		return tx.Products().Delete(ctx, id)
	})
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
