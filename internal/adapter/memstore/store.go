// Package memstore is an in-process implementation of usecase.Store for local
// runs and tests. Transactions are serialized and applied copy-on-commit.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
)

type data struct {
	products map[string]*domain.Product
	orders   map[string]*domain.Order
}

func (d *data) clone() *data {
	c := &data{
		products: make(map[string]*domain.Product, len(d.products)),
		orders:   make(map[string]*domain.Order, len(d.orders)),
	}
	for id, p := range d.products {
		c.products[id] = p.Clone()
	}
	for id, o := range d.orders {
		c.orders[id] = o.Clone()
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	d     *data
	notes *notificationRepo
}

func New() *Store {
	return &Store{
		d: &data{
			products: map[string]*domain.Product{},
			orders:   map[string]*domain.Order{},
		},
		notes: &notificationRepo{byID: map[string]*domain.Notification{}},
	}
}

func (s *Store) Products() usecase.ProductRepo           { return &productRepo{st: s} }
func (s *Store) Orders() usecase.OrderRepo               { return &orderRepo{st: s} }
func (s *Store) Notifications() usecase.NotificationRepo { return s.notes }

func (s *Store) WithinTx(ctx context.Context, fn func(tx usecase.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.d.clone()
	if err := fn(txView{d: work}); err != nil {
		return err
	}
	s.d = work
	return nil
}

type txView struct{ d *data }

func (t txView) Products() usecase.ProductRepo { return &productRepo{tx: t.d} }
func (t txView) Orders() usecase.OrderRepo     { return &orderRepo{tx: t.d} }

var _ usecase.Store = (*Store)(nil)

// ---- products ----

type productRepo struct {
	st *Store
	tx *data
}

func (r *productRepo) with(fn func(d *data) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return fn(r.st.d)
}

func (r *productRepo) Create(_ context.Context, p *domain.Product) error {
	return r.with(func(d *data) error {
		d.products[p.ID] = p.Clone()
		return nil
	})
}

func (r *productRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	var out *domain.Product
	err := r.with(func(d *data) error {
		p, ok := d.products[id]
		if !ok {
			return &usecase.NotFoundError{Kind: "product", ID: id}
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r *productRepo) Update(_ context.Context, p *domain.Product) error {
	return r.with(func(d *data) error {
		if _, ok := d.products[p.ID]; !ok {
			return &usecase.NotFoundError{Kind: "product", ID: p.ID}
		}
		d.products[p.ID] = p.Clone()
		return nil
	})
}

func (r *productRepo) AdjustStock(_ context.Context, id string, delta int) (*domain.Product, error) {
	var out *domain.Product
	err := r.with(func(d *data) error {
		p, ok := d.products[id]
		if !ok {
			return &usecase.NotFoundError{Kind: "product", ID: id}
		}
		if p.StockQuantity+delta < 0 {
			return &usecase.InsufficientStockError{ProductID: id, Requested: -delta, Available: p.StockQuantity}
		}
		p.StockQuantity += delta
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r *productRepo) Search(_ context.Context, f usecase.ProductFilter) ([]*domain.Product, error) {
	var out []*domain.Product
	q := strings.ToLower(f.Query)
	_ = r.with(func(d *data) error {
		for _, p := range d.products {
			if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
				continue
			}
			if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
				continue
			}
			if f.Status != "" && p.Status != f.Status {
				continue
			}
			if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
				continue
			}
			if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
				continue
			}
			out = append(out, p.Clone())
		}
		return nil
	})

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch f.Sort {
		case usecase.SortPriceAsc:
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case usecase.SortPriceDesc:
			if !a.Price.Equal(b.Price) {
				return a.Price.GreaterThan(b.Price)
			}
		case usecase.SortName:
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		default:
			return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
		}
		return a.ID < b.ID
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (r *productRepo) Delete(_ context.Context, id string) error {
	return r.with(func(d *data) error {
		if _, ok := d.products[id]; !ok {
			return &usecase.NotFoundError{Kind: "product", ID: id}
		}
		delete(d.products, id)
		return nil
	})
}

// ---- orders ----

type orderRepo struct {
	st *Store
	tx *data
}

func (r *orderRepo) with(fn func(d *data) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return fn(r.st.d)
}

func (r *orderRepo) Create(_ context.Context, o *domain.Order) error {
	return r.with(func(d *data) error {
		if o.Version == 0 {
			o.Version = 1
		}
		d.orders[o.ID] = o.Clone()
		return nil
	})
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	var out *domain.Order
	err := r.with(func(d *data) error {
		o, ok := d.orders[id]
		if !ok {
			return &usecase.NotFoundError{Kind: "order", ID: id}
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

func (r *orderRepo) List(_ context.Context, f usecase.OrderFilter) ([]*domain.Order, error) {
	var out []*domain.Order
	_ = r.with(func(d *data) error {
		for _, o := range d.orders {
			if f.UserID != "" && o.UserID != f.UserID {
				continue
			}
			if f.Status != "" && o.Status != f.Status {
				continue
			}
			out = append(out, o.Clone())
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, o *domain.Order, expectedVersion int64) error {
	return r.with(func(d *data) error {
		cur, ok := d.orders[o.ID]
		if !ok {
			return &usecase.NotFoundError{Kind: "order", ID: o.ID}
		}
		if cur.Version != expectedVersion {
			return usecase.ErrVersionConflict
		}
		cur.Status = o.Status
		cur.CancelReason = o.CancelReason
		cur.UpdatedAt = o.UpdatedAt
		cur.Version++
		o.Version = cur.Version
		return nil
	})
}

func (r *orderRepo) Delete(_ context.Context, id string, expectedVersion int64) error {
	return r.with(func(d *data) error {
		cur, ok := d.orders[id]
		if !ok {
			return &usecase.NotFoundError{Kind: "order", ID: id}
		}
		if cur.Version != expectedVersion {
			return usecase.ErrVersionConflict
		}
		delete(d.orders, id)
		return nil
	})
}

func (r *orderRepo) CountByProduct(_ context.Context, productID string) (int, error) {
	n := 0
	_ = r.with(func(d *data) error {
		for _, o := range d.orders {
			for _, li := range o.Items {
				if li.ProductID == productID {
					n++
					break
				}
			}
		}
		return nil
	})
	return n, nil
}

// newestFirst matches the SQL ordering "created_at DESC, id" so pages are
// repeatable when timestamps collide.
func newestFirst(ta, tb time.Time, ida, idb string) bool {
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return ida < idb
}

func paginate[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
