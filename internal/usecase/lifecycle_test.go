package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aq2208/storefront-api/internal/adapter/memstore"
	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLifecycle(s usecase.Store, sink usecase.NotificationSink, opts ...usecase.LifecycleOption) *usecase.Lifecycle {
	return usecase.NewLifecycle(s, usecase.NewInventory(nil), sink, opts...)
}

func transition(lc *usecase.Lifecycle, id, to string) (*domain.Order, error) {
	return lc.Transition(context.Background(), usecase.TransitionInput{OrderID: id, To: to, Actor: "admin-1"})
}

func TestConfirmWithInsufficientStock(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 2)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 3))
	lc := newLifecycle(s, nil)

	_, err := transition(lc, "o1", "confirmed")
	var ise *usecase.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "p1", ise.ProductID)
	assert.Equal(t, 3, ise.Requested)
	assert.Equal(t, 2, ise.Available)

	assert.Equal(t, 2, stockOf(t, s, "p1"))
	assert.Equal(t, domain.StatusPending, statusOf(t, s, "o1"))
}

func TestConfirmThenRefundRestoresStock(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	lc := newLifecycle(s, nil)

	o, err := transition(lc, "o1", "confirmed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, o.Status)
	assert.Equal(t, int64(2), o.Version)
	assert.Equal(t, 3, stockOf(t, s, "p1"))

	_, err = transition(lc, "o1", "refunded")
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, s, "p1"))
	assert.Equal(t, domain.StatusRefunded, statusOf(t, s, "o1"))
}

func TestCancelPendingLeavesStockAlone(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	lc := newLifecycle(s, nil)

	_, err := transition(lc, "o1", "cancelled")
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, s, "p1"))
}

func TestCancelCommittedOrderRestoresStock(t *testing.T) {
	for _, from := range []domain.Status{domain.StatusConfirmed, domain.StatusShipping} {
		t.Run(string(from), func(t *testing.T) {
			s := memstore.New()
			addProduct(t, s, "p1", 3)
			addProduct(t, s, "p2", 0)
			addOrder(t, s, "o1", from, item("p1", 2), item("p2", 1))
			lc := newLifecycle(s, nil)

			o, err := lc.Transition(context.Background(), usecase.TransitionInput{OrderID: "o1", To: "cancelled", Reason: "customer request"})
			require.NoError(t, err)
			assert.Equal(t, "customer request", o.CancelReason)
			assert.Equal(t, 5, stockOf(t, s, "p1"))
			assert.Equal(t, 1, stockOf(t, s, "p2"))
		})
	}
}

func TestTerminalOrdersRefuseEveryTransition(t *testing.T) {
	for _, from := range []domain.Status{domain.StatusCancelled, domain.StatusRefunded} {
		for _, to := range []string{"pending", "confirmed", "shipping", "completed", "cancelled", "refunded"} {
			t.Run(string(from)+"->"+to, func(t *testing.T) {
				s := memstore.New()
				addProduct(t, s, "p1", 5)
				addOrder(t, s, "o1", from, item("p1", 1))
				lc := newLifecycle(s, nil)

				_, err := transition(lc, "o1", to)
				require.ErrorIs(t, err, usecase.ErrInvalidTransition)
				assert.Equal(t, 5, stockOf(t, s, "p1"))
				assert.Equal(t, from, statusOf(t, s, "o1"))
			})
		}
	}
}

func TestTransitionOutsideTableRefused(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 1))
	lc := newLifecycle(s, nil)

	_, err := transition(lc, "o1", "completed")
	var ite *usecase.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.StatusPending, ite.From)
	assert.Equal(t, domain.StatusCompleted, ite.To)
}

func TestLegacyStatusAliases(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 1))
	lc := newLifecycle(s, nil)

	o, err := transition(lc, "o1", "processing")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, o.Status)
	assert.Equal(t, 4, stockOf(t, s, "p1"))

	_, err = transition(lc, "o1", "shipping")
	require.NoError(t, err)
	o, err = transition(lc, "o1", "delivered")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, o.Status)
	assert.Equal(t, 4, stockOf(t, s, "p1"))
}

func TestTransitionValidation(t *testing.T) {
	lc := newLifecycle(memstore.New(), nil)

	_, err := transition(lc, "o1", "teleported")
	var ve *usecase.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)

	_, err = transition(lc, "", "confirmed")
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = transition(lc, "missing", "confirmed")
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

type workerKey struct{}

// staleReadStore hands every worker the order as it was before any of them
// committed, once, so all workers race on the same version.
type staleReadStore struct {
	usecase.Store
	snapshot  *domain.Order
	served    sync.Map
	conflicts atomic.Int32
}

func (s *staleReadStore) WithinTx(ctx context.Context, fn func(tx usecase.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx usecase.Tx) error {
		return fn(staleTx{Tx: tx, s: s})
	})
}

type staleTx struct {
	usecase.Tx
	s *staleReadStore
}

func (t staleTx) Orders() usecase.OrderRepo { return staleOrders{OrderRepo: t.Tx.Orders(), s: t.s} }

type staleOrders struct {
	usecase.OrderRepo
	s *staleReadStore
}

func (r staleOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if w, ok := ctx.Value(workerKey{}).(int); ok && id == r.s.snapshot.ID {
		if _, loaded := r.s.served.LoadOrStore(w, true); !loaded {
			return r.s.snapshot.Clone(), nil
		}
	}
	return r.OrderRepo.GetByID(ctx, id)
}

func (r staleOrders) UpdateStatus(ctx context.Context, o *domain.Order, expectedVersion int64) error {
	err := r.OrderRepo.UpdateStatus(ctx, o, expectedVersion)
	if errors.Is(err, usecase.ErrVersionConflict) {
		r.s.conflicts.Add(1)
	}
	return err
}

func TestConcurrentConfirmCommitsOnce(t *testing.T) {
	mem := memstore.New()
	addProduct(t, mem, "p1", 10)
	addOrder(t, mem, "o1", domain.StatusPending, item("p1", 4))
	before, err := mem.Orders().GetByID(context.Background(), "o1")
	require.NoError(t, err)
	s := &staleReadStore{Store: mem, snapshot: before}
	lc := newLifecycle(s, nil)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ctx := context.WithValue(context.Background(), workerKey{}, worker)
			_, err := lc.Transition(ctx, usecase.TransitionInput{OrderID: "o1", To: "confirmed", Actor: "admin-1"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
				return
			}
			errs = append(errs, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	for _, err := range errs {
		assert.ErrorIs(t, err, usecase.ErrInvalidTransition)
	}
	// every loser read pending at the old version and was turned away by the CAS
	assert.EqualValues(t, n-1, s.conflicts.Load())
	assert.Equal(t, 6, stockOf(t, mem, "p1"))
	assert.Equal(t, domain.StatusConfirmed, statusOf(t, mem, "o1"))
}

func TestVersionConflictRetriesThenSucceeds(t *testing.T) {
	s := &conflictStore{Store: memstore.New(), conflicts: 2}
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	lc := newLifecycle(s, nil, usecase.WithMaxRetries(3))

	_, err := transition(lc, "o1", "confirmed")
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, s, "p1"), "failed attempts are rolled back")
}

func TestVersionConflictExhaustsRetries(t *testing.T) {
	s := &conflictStore{Store: memstore.New(), conflicts: 100}
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	lc := newLifecycle(s, nil, usecase.WithMaxRetries(2))

	_, err := transition(lc, "o1", "confirmed")
	var cce *usecase.ConcurrencyConflictError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, 3, cce.Attempts)
	assert.Equal(t, 5, stockOf(t, s, "p1"))
	assert.Equal(t, domain.StatusPending, statusOf(t, s, "o1"))
}

func TestRejectRequiresReason(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusConfirmed, item("p1", 2))
	sink := &recordingSink{}
	lc := newLifecycle(s, sink)

	_, err := lc.Reject(context.Background(), "o1", "   ", "admin-1")
	require.ErrorIs(t, err, usecase.ErrValidation)
	assert.Empty(t, sink.all())

	o, err := lc.Reject(context.Background(), "o1", "fraud suspected", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)
	assert.Equal(t, "fraud suspected", o.CancelReason)
	assert.Equal(t, 7, stockOf(t, s, "p1"))

	drafts := sink.all()
	require.Len(t, drafts, 1)
	assert.Equal(t, domain.NotificationOrderRejected, drafts[0].Type)
	assert.Contains(t, drafts[0].Message, "fraud suspected")
}

func TestCancelByCustomer(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 1))
	addOrder(t, s, "o2", domain.StatusConfirmed, item("p1", 1))
	lc := newLifecycle(s, nil)
	ctx := context.Background()

	_, err := lc.CancelByCustomer(ctx, "someone-else", "o1", "")
	assert.ErrorIs(t, err, usecase.ErrNotFound)

	_, err = lc.CancelByCustomer(ctx, "user-1", "o2", "")
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition)

	o, err := lc.CancelByCustomer(ctx, "user-1", "o1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)
	assert.Equal(t, 5, stockOf(t, s, "p1"))
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	sink := &recordingSink{err: errSinkDown}
	lc := newLifecycle(s, sink)

	o, err := transition(lc, "o1", "confirmed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, o.Status)
	assert.Equal(t, 3, stockOf(t, s, "p1"))
	assert.Len(t, sink.all(), 1)
}

func TestStatusNotificationContent(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "order-123456789", domain.StatusPending, item("p1", 2))
	sink := &recordingSink{}
	lc := newLifecycle(s, sink)

	_, err := transition(lc, "order-123456789", "confirmed")
	require.NoError(t, err)

	drafts := sink.all()
	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, domain.NotificationOrderStatus, d.Type)
	assert.Equal(t, "Order confirmed", d.Title)
	assert.Contains(t, d.Message, "#order-12")
	assert.Equal(t, "confirmed", d.Metadata["status"])
	assert.Equal(t, "pending", d.Metadata["previousStatus"])
	assert.Equal(t, "admin-1", d.Metadata["actor"])
	assert.Equal(t, []string{"user-1"}, sink.users)
}

func TestDeleteRefusesWhileStockHeld(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusConfirmed, item("p1", 2))
	lc := newLifecycle(s, nil)

	err := lc.Delete(context.Background(), "o1", "admin-1")
	var ite *usecase.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, domain.StatusConfirmed, ite.From)
	assert.Equal(t, domain.StatusConfirmed, statusOf(t, s, "o1"))
}

func TestDeleteNeverRestocks(t *testing.T) {
	for _, st := range []domain.Status{domain.StatusPending, domain.StatusCancelled, domain.StatusRefunded} {
		t.Run(string(st), func(t *testing.T) {
			s := memstore.New()
			addProduct(t, s, "p1", 5)
			addOrder(t, s, "o1", st, item("p1", 2))
			sink := &recordingSink{}
			lc := newLifecycle(s, sink)

			require.NoError(t, lc.Delete(context.Background(), "o1", "admin-1"))
			assert.Equal(t, 5, stockOf(t, s, "p1"))

			_, err := s.Orders().GetByID(context.Background(), "o1")
			assert.ErrorIs(t, err, usecase.ErrNotFound)

			drafts := sink.all()
			require.Len(t, drafts, 1)
			assert.Equal(t, domain.NotificationOrderDeleted, drafts[0].Type)
		})
	}
}

type fakeLocker struct {
	mu     sync.Mutex
	locked map[string]int
	err    error
}

func (f *fakeLocker) Lock(_ context.Context, orderID string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.locked[orderID]++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.locked[orderID]--
		f.mu.Unlock()
	}, nil
}

func TestLockerWrapsTransition(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	locker := &fakeLocker{locked: map[string]int{}}
	lc := newLifecycle(s, nil, usecase.WithLocker(locker))

	_, err := transition(lc, "o1", "confirmed")
	require.NoError(t, err)
	assert.Equal(t, 0, locker.locked["o1"], "lock released")

	locker.err = &usecase.ConcurrencyConflictError{OrderID: "o1", Attempts: 1}
	_, err = transition(lc, "o1", "shipping")
	assert.ErrorIs(t, err, usecase.ErrConcurrencyConflict)
	assert.Equal(t, domain.StatusConfirmed, statusOf(t, s, "o1"))
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *mapCache) SetStatus(_ context.Context, id, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = status
	return nil
}

func (c *mapCache) SetStatusIfAbsent(_ context.Context, id, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[id]; !ok {
		c.m[id] = status
	}
	return nil
}

func (c *mapCache) GetStatus(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[id], nil
}

func (c *mapCache) DeleteStatus(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

func TestStatusCacheFollowsTransitions(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	cache := &mapCache{m: map[string]string{}}
	lc := newLifecycle(s, nil, usecase.WithStatusCache(cache))
	q := usecase.NewOrderQueries(s, cache)
	ctx := context.Background()

	st, err := q.Status(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, st)
	assert.Equal(t, "pending", cache.m["o1"])

	_, err = transition(lc, "o1", "cancelled")
	require.NoError(t, err)
	st, err = q.Status(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, st)

	require.NoError(t, lc.Delete(ctx, "o1", "admin-1"))
	_, ok := cache.m["o1"]
	assert.False(t, ok)
}

// afterReadStore runs hook once, right after the first order read through
// the non-transactional repo returns.
type afterReadStore struct {
	usecase.Store
	hook func()
}

func (s *afterReadStore) Orders() usecase.OrderRepo {
	return &afterReadOrders{OrderRepo: s.Store.Orders(), s: s}
}

type afterReadOrders struct {
	usecase.OrderRepo
	s *afterReadStore
}

func (r *afterReadOrders) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := r.OrderRepo.GetByID(ctx, id)
	if hook := r.s.hook; hook != nil {
		r.s.hook = nil
		hook()
	}
	return o, err
}

func TestStatusCacheFillDoesNotOverwriteNewerTransition(t *testing.T) {
	s := memstore.New()
	addProduct(t, s, "p1", 5)
	addOrder(t, s, "o1", domain.StatusPending, item("p1", 2))
	cache := &mapCache{m: map[string]string{}}
	lc := newLifecycle(s, nil, usecase.WithStatusCache(cache))
	ctx := context.Background()

	racing := &afterReadStore{Store: s}
	racing.hook = func() {
		_, err := transition(lc, "o1", "confirmed")
		require.NoError(t, err)
	}
	q := usecase.NewOrderQueries(racing, cache)

	// the read saw pending; the transition committed before the fill
	st, err := q.Status(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, st)

	st, err = q.Status(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, st)
	assert.Equal(t, "confirmed", cache.m["o1"])
}
