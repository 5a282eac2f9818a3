package usecase

import (
	"context"
	"time"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/google/uuid"
)

// Notifier persists notifications directly. It is the sink in "direct" mode
// and the consumer-side writer in "rabbitmq" mode.
type Notifier struct {
	repo NotificationRepo
	now  func() time.Time
}

func NewNotifier(repo NotificationRepo) *Notifier {
	return &Notifier{repo: repo, now: time.Now}
}

func (n *Notifier) Emit(ctx context.Context, userID string, d NotificationDraft) error {
	if userID == "" {
		return invalid("userId", "required")
	}
	return n.repo.Create(ctx, &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		OrderID:   d.OrderID,
		Type:      d.Type,
		Title:     d.Title,
		Message:   d.Message,
		Metadata:  d.Metadata,
		CreatedAt: n.now().UTC(),
	})
}

var _ NotificationSink = (*Notifier)(nil)

// Inbox is the user-facing side of notifications. Every call is scoped to the owner.
type Inbox struct {
	repo NotificationRepo
}

func NewInbox(repo NotificationRepo) *Inbox {
	return &Inbox{repo: repo}
}

func (b *Inbox) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	limit, _ = page(limit, 0)
	return b.repo.ListByUser(ctx, userID, unreadOnly, limit)
}

func (b *Inbox) UnreadCount(ctx context.Context, userID string) (int, error) {
	return b.repo.CountUnread(ctx, userID)
}

func (b *Inbox) MarkRead(ctx context.Context, userID, id string) error {
	return b.repo.MarkRead(ctx, userID, id)
}

func (b *Inbox) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return b.repo.MarkAllRead(ctx, userID)
}

func (b *Inbox) Delete(ctx context.Context, userID, id string) error {
	return b.repo.Delete(ctx, userID, id)
}
