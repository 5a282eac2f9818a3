package memstore

import (
	"context"
	"sort"
	"sync"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
)

type notificationRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Notification
}

func (r *notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *n
	r.byID[n.ID] = &c
	return nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Notification
	for _, n := range r.byID {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return newestFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return paginate(out, limit, 0), nil
}

func (r *notificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.byID {
		if x.UserID == userID && !x.Read {
			n++
		}
	}
	return n, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok || n.UserID != userID {
		return &usecase.NotFoundError{Kind: "notification", ID: id}
	}
	n.Read = true
	return nil
}

func (r *notificationRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := 0
	for _, n := range r.byID {
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (r *notificationRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok || n.UserID != userID {
		return &usecase.NotFoundError{Kind: "notification", ID: id}
	}
	delete(r.byID, id)
	return nil
}

var _ usecase.NotificationRepo = (*notificationRepo)(nil)
