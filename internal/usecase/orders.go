package usecase

import (
	"context"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/logging"
)

// OrderQueries serves read-only order views.
type OrderQueries struct {
	store Store
	cache OrderCache
}

func NewOrderQueries(store Store, cache OrderCache) *OrderQueries {
	return &OrderQueries{store: store, cache: cache}
}

// GetForUser hides orders owned by someone else behind a not-found.
func (q *OrderQueries) GetForUser(ctx context.Context, userID, id string) (*domain.Order, error) {
	o, err := q.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, &NotFoundError{Kind: "order", ID: id}
	}
	return o, nil
}

func (q *OrderQueries) Get(ctx context.Context, id string) (*domain.Order, error) {
	return q.store.Orders().GetByID(ctx, id)
}

func (q *OrderQueries) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, error) {
	limit, offset = page(limit, offset)
	return q.store.Orders().List(ctx, OrderFilter{UserID: userID, Limit: limit, Offset: offset})
}

// List is the admin view; status accepts legacy aliases.
func (q *OrderQueries) List(ctx context.Context, status string, limit, offset int) ([]*domain.Order, error) {
	f := OrderFilter{}
	if status != "" {
		st, err := domain.ParseStatus(status)
		if err != nil {
			return nil, invalid("status", err.Error())
		}
		f.Status = st
	}
	f.Limit, f.Offset = page(limit, offset)
	return q.store.Orders().List(ctx, f)
}

// Status reads through the status cache. Cache failures fall back to the store.
func (q *OrderQueries) Status(ctx context.Context, id string) (domain.Status, error) {
	if q.cache != nil {
		if s, err := q.cache.GetStatus(ctx, id); err == nil && s != "" {
			return domain.Status(s), nil
		}
	}
	o, err := q.store.Orders().GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if q.cache != nil {
		if err := q.cache.SetStatusIfAbsent(ctx, o.ID, string(o.Status)); err != nil {
			logging.FromCtx(ctx).WarnContext(ctx, "status cache write failed", "order_id", o.ID, "error", err)
		}
	}
	return o.Status, nil
}
