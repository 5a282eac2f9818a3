package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aq2208/storefront-api/internal/adapter/memstore"
	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	drafts []usecase.NotificationDraft
	users  []string
	err    error
}

func (s *recordingSink) Emit(_ context.Context, userID string, d usecase.NotificationDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, d)
	s.users = append(s.users, userID)
	return s.err
}

func (s *recordingSink) all() []usecase.NotificationDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]usecase.NotificationDraft(nil), s.drafts...)
}

type memIdem struct {
	mu     sync.Mutex
	locks  map[string]bool
	values map[string]string
}

func newMemIdem() *memIdem {
	return &memIdem{locks: map[string]bool{}, values: map[string]string{}}
}

func (m *memIdem) TryLock(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + ":" + key
	if m.locks[k] {
		return false, nil
	}
	m.locks[k] = true
	return true, nil
}

func (m *memIdem) Remember(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[scope+":"+key] = value
	return nil
}

func (m *memIdem) Recall(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[scope+":"+key]
	return v, ok, nil
}

func (m *memIdem) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, scope+":"+key)
	return nil
}

func addProduct(t *testing.T, s usecase.Store, id string, stock int) {
	t.Helper()
	require.NoError(t, s.Products().Create(context.Background(), &domain.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.RequireFromString("9.99"),
		StockQuantity: stock,
		Status:        domain.DeriveProductStatus(domain.ProductActive, stock),
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}))
}

func addOrder(t *testing.T, s usecase.Store, id string, status domain.Status, items ...domain.LineItem) *domain.Order {
	t.Helper()
	o := &domain.Order{
		ID:       id,
		UserID:   "user-1",
		Items:    items,
		Shipping: domain.ShippingAddress{FullName: "Ann", Line1: "1 Main St", City: "Hanoi", Country: "VN"},
		Status:   status,
		Version:  1,
	}
	o.TotalAmount = o.ComputeTotal()
	require.NoError(t, s.Orders().Create(context.Background(), o))
	return o
}

func item(productID string, qty int) domain.LineItem {
	return domain.LineItem{ProductID: productID, Name: productID, Quantity: qty, UnitPrice: decimal.RequireFromString("9.99")}
}

func stockOf(t *testing.T, s usecase.Store, id string) int {
	t.Helper()
	p, err := s.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func statusOf(t *testing.T, s usecase.Store, id string) domain.Status {
	t.Helper()
	o, err := s.Orders().GetByID(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}

// conflictStore makes the first n order status writes report a stale version.
type conflictStore struct {
	*memstore.Store
	mu        sync.Mutex
	conflicts int
}

func (c *conflictStore) WithinTx(ctx context.Context, fn func(tx usecase.Tx) error) error {
	return c.Store.WithinTx(ctx, func(tx usecase.Tx) error {
		return fn(conflictTx{Tx: tx, parent: c})
	})
}

type conflictTx struct {
	usecase.Tx
	parent *conflictStore
}

func (t conflictTx) Orders() usecase.OrderRepo {
	return conflictOrders{OrderRepo: t.Tx.Orders(), parent: t.parent}
}

type conflictOrders struct {
	usecase.OrderRepo
	parent *conflictStore
}

func (o conflictOrders) UpdateStatus(ctx context.Context, ord *domain.Order, expected int64) error {
	o.parent.mu.Lock()
	if o.parent.conflicts > 0 {
		o.parent.conflicts--
		o.parent.mu.Unlock()
		return usecase.ErrVersionConflict
	}
	o.parent.mu.Unlock()
	return o.OrderRepo.UpdateStatus(ctx, ord, expected)
}

var errSinkDown = errors.New("sink down")
