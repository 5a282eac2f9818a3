package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/logging"
)

// Inventory keeps product stock in step with orders that committed or released it.
// Both operations must run inside the caller's transaction: Commit relies on the
// rollback to undo earlier decrements if a later one loses a race.
type Inventory struct {
	log *slog.Logger
}

func NewInventory(log *slog.Logger) *Inventory {
	if log == nil {
		log = logging.New("inventory")
	}
	return &Inventory{log: log}
}

type demand struct {
	productID string
	quantity  int
}

// aggregate sums quantities per product in ascending id order, so two orders
// touching the same products always lock them in the same sequence.
func aggregate(items []domain.LineItem) []demand {
	sum := make(map[string]int, len(items))
	for _, li := range items {
		sum[li.ProductID] += li.Quantity
	}
	out := make([]demand, 0, len(sum))
	for id, q := range sum {
		out = append(out, demand{productID: id, quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

// Commit reserves stock for every line item or for none of them.
func (inv *Inventory) Commit(ctx context.Context, products ProductRepo, o *domain.Order) error {
	demands := aggregate(o.Items)

	// verify-all
	for _, d := range demands {
		p, err := products.GetByID(ctx, d.productID)
		if err != nil {
			return err
		}
		if p.StockQuantity < d.quantity {
			return &InsufficientStockError{ProductID: d.productID, Requested: d.quantity, Available: p.StockQuantity}
		}
	}

	// apply-all
	for _, d := range demands {
		p, err := products.AdjustStock(ctx, d.productID, -d.quantity)
		if err != nil {
			return fmt.Errorf("commit stock %s: %w", d.productID, err)
		}
		if err := inv.syncStatus(ctx, products, p); err != nil {
			return err
		}
		stockAdjustments.WithLabelValues("commit").Inc()
	}

	inv.log.InfoContext(ctx, "stock committed", "order_id", o.ID, "products", len(demands))
	return nil
}

// Release returns stock for every line item. Products that no longer exist are
// skipped so an orphaned reference never blocks a cancellation or refund.
func (inv *Inventory) Release(ctx context.Context, products ProductRepo, o *domain.Order) error {
	demands := aggregate(o.Items)
	released := 0
	for _, d := range demands {
		p, err := products.AdjustStock(ctx, d.productID, d.quantity)
		if errors.Is(err, ErrNotFound) {
			inv.log.WarnContext(ctx, "release skipped missing product",
				"order_id", o.ID, "product_id", d.productID, "quantity", d.quantity)
			continue
		}
		if err != nil {
			return fmt.Errorf("release stock %s: %w", d.productID, err)
		}
		if err := inv.syncStatus(ctx, products, p); err != nil {
			return err
		}
		released++
		stockAdjustments.WithLabelValues("release").Inc()
	}

	inv.log.InfoContext(ctx, "stock released", "order_id", o.ID, "products", released)
	return nil
}

func (inv *Inventory) syncStatus(ctx context.Context, products ProductRepo, p *domain.Product) error {
	next := domain.DeriveProductStatus(p.Status, p.StockQuantity)
	if next == p.Status {
		return nil
	}
	p.Status = next
	if err := products.Update(ctx, p); err != nil {
		return fmt.Errorf("update product status %s: %w", p.ID, err)
	}
	return nil
}
