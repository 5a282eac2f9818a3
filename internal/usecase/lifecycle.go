package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// statusDeleted only appears in errors and notifications; it is never stored.
const statusDeleted domain.Status = "deleted"

const defaultMaxRetries = 3

type template struct{ title, message string }

var statusTemplates = map[domain.Status]template{
	domain.StatusConfirmed: {"Order confirmed", "Your order %s has been confirmed and is being prepared."},
	domain.StatusShipping:  {"Order shipped", "Your order %s is on its way."},
	domain.StatusCompleted: {"Order delivered", "Your order %s has been delivered. Thank you for shopping with us."},
	domain.StatusCancelled: {"Order cancelled", "Your order %s has been cancelled."},
	domain.StatusRefunded:  {"Order refunded", "Your order %s has been refunded."},
}

// Lifecycle validates and applies order status transitions. Stock side effects
// and the order write share one store transaction; concurrent requests for the
// same order are serialized by the optional locker and by the order version.
type Lifecycle struct {
	store      Store
	inv        *Inventory
	sink       NotificationSink
	locker     OrderLocker
	cache      OrderCache
	maxRetries int
	now        func() time.Time
	log        *slog.Logger
	tracer     trace.Tracer
}

type LifecycleOption func(*Lifecycle)

func WithLocker(l OrderLocker) LifecycleOption       { return func(lc *Lifecycle) { lc.locker = l } }
func WithStatusCache(c OrderCache) LifecycleOption   { return func(lc *Lifecycle) { lc.cache = c } }
func WithMaxRetries(n int) LifecycleOption           { return func(lc *Lifecycle) { lc.maxRetries = n } }
func WithClock(now func() time.Time) LifecycleOption { return func(lc *Lifecycle) { lc.now = now } }
func WithLogger(l *slog.Logger) LifecycleOption      { return func(lc *Lifecycle) { lc.log = l } }

func NewLifecycle(store Store, inv *Inventory, sink NotificationSink, opts ...LifecycleOption) *Lifecycle {
	lc := &Lifecycle{
		store:      store,
		inv:        inv,
		sink:       sink,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		tracer:     otel.Tracer("storefront/lifecycle"),
	}
	for _, opt := range opts {
		opt(lc)
	}
	if lc.log == nil {
		lc.log = logging.New("lifecycle")
	}
	if lc.inv == nil {
		lc.inv = NewInventory(lc.log)
	}
	if lc.maxRetries < 0 {
		lc.maxRetries = 0
	}
	return lc
}

type TransitionInput struct {
	OrderID string
	To      string
	Reason  string
	Actor   string
	// From, when set, requires the order to still be in that status.
	From domain.Status
}

type change struct {
	reason string
	actor  string
	kind   domain.NotificationType
	guard  func(o *domain.Order) error
}

// Transition moves an order to the requested status.
func (l *Lifecycle) Transition(ctx context.Context, in TransitionInput) (*domain.Order, error) {
	if in.OrderID == "" {
		return nil, invalid("orderId", "required")
	}
	to, err := domain.ParseStatus(in.To)
	if err != nil {
		return nil, invalid("status", err.Error())
	}
	ch := change{
		reason: strings.TrimSpace(in.Reason),
		actor:  in.Actor,
		kind:   domain.NotificationOrderStatus,
	}
	if in.From != "" {
		ch.guard = func(o *domain.Order) error {
			if o.Status != in.From {
				return &InvalidTransitionError{From: o.Status, To: to}
			}
			return nil
		}
	}
	return l.apply(ctx, in.OrderID, to, ch)
}

// Reject cancels an order with a mandatory reason shown to the customer.
func (l *Lifecycle) Reject(ctx context.Context, orderID, reason, actor string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "required when rejecting an order")
	}
	if orderID == "" {
		return nil, invalid("orderId", "required")
	}
	return l.apply(ctx, orderID, domain.StatusCancelled, change{
		reason: reason,
		actor:  actor,
		kind:   domain.NotificationOrderRejected,
	})
}

// CancelByCustomer lets the owner cancel an order that is still pending.
func (l *Lifecycle) CancelByCustomer(ctx context.Context, userID, orderID, reason string) (*domain.Order, error) {
	return l.apply(ctx, orderID, domain.StatusCancelled, change{
		reason: strings.TrimSpace(reason),
		actor:  userID,
		kind:   domain.NotificationOrderStatus,
		guard: func(o *domain.Order) error {
			if o.UserID != userID {
				return &NotFoundError{Kind: "order", ID: orderID}
			}
			if o.Status != domain.StatusPending {
				return &InvalidTransitionError{From: o.Status, To: domain.StatusCancelled}
			}
			return nil
		},
	})
}

// Delete removes an order that holds no committed stock. It never restocks:
// cancel or refund first to release inventory.
func (l *Lifecycle) Delete(ctx context.Context, orderID, actor string) error {
	if orderID == "" {
		return invalid("orderId", "required")
	}
	ctx, span := l.tracer.Start(ctx, "order.delete", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	unlock, err := l.lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()

	var deleted *domain.Order
	err = l.retry(ctx, orderID, func() error {
		return l.store.WithinTx(ctx, func(tx Tx) error {
			o, err := tx.Orders().GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status.HoldsStock() {
				return &InvalidTransitionError{From: o.Status, To: statusDeleted}
			}
			if err := tx.Orders().Delete(ctx, orderID, o.Version); err != nil {
				return err
			}
			deleted = o
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		orderTransitions.WithLabelValues("", string(statusDeleted), resultLabel(err)).Inc()
		return err
	}

	orderTransitions.WithLabelValues(string(deleted.Status), string(statusDeleted), "ok").Inc()
	l.log.InfoContext(ctx, "order deleted", "order_id", orderID, "status", deleted.Status, "actor", actor)
	if l.cache != nil {
		if err := l.cache.DeleteStatus(ctx, orderID); err != nil {
			l.log.WarnContext(ctx, "status cache delete failed", "order_id", orderID, "error", err)
		}
	}
	l.notify(ctx, deleted.UserID, NotificationDraft{
		Type:    domain.NotificationOrderDeleted,
		OrderID: deleted.ID,
		Title:   "Order removed",
		Message: fmt.Sprintf("Your order %s has been removed.", shortID(deleted.ID)),
		Metadata: map[string]any{
			"previousStatus": string(deleted.Status),
			"actor":          actor,
		},
	})
	return nil
}

func (l *Lifecycle) apply(ctx context.Context, orderID string, to domain.Status, ch change) (*domain.Order, error) {
	ctx, span := l.tracer.Start(ctx, "order.transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.to", string(to)),
	))
	defer span.End()

	unlock, err := l.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		updated *domain.Order
		from    domain.Status
	)
	err = l.retry(ctx, orderID, func() error {
		return l.store.WithinTx(ctx, func(tx Tx) error {
			o, err := tx.Orders().GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			from = o.Status
			if ch.guard != nil {
				if err := ch.guard(o); err != nil {
					return err
				}
			}
			if from.IsTerminal() || !from.CanTransitionTo(to) {
				return &InvalidTransitionError{From: from, To: to}
			}

			switch {
			case to == domain.StatusConfirmed:
				if err := l.inv.Commit(ctx, tx.Products(), o); err != nil {
					return err
				}
			case (to == domain.StatusCancelled || to == domain.StatusRefunded) && from.HoldsStock():
				if err := l.inv.Release(ctx, tx.Products(), o); err != nil {
					return err
				}
			}

			expected := o.Version
			o.Status = to
			if ch.reason != "" && (to == domain.StatusCancelled || to == domain.StatusRefunded) {
				o.CancelReason = ch.reason
			}
			o.UpdatedAt = l.now()
			if err := tx.Orders().UpdateStatus(ctx, o, expected); err != nil {
				return err
			}
			updated = o
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		orderTransitions.WithLabelValues(string(from), string(to), resultLabel(err)).Inc()
		l.log.InfoContext(ctx, "order transition refused",
			"order_id", orderID, "from", from, "to", to, "actor", ch.actor, "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.from", string(from)))
	orderTransitions.WithLabelValues(string(from), string(to), "ok").Inc()
	l.log.InfoContext(ctx, "order transitioned",
		"order_id", orderID, "from", from, "to", to, "actor", ch.actor)

	if l.cache != nil {
		if err := l.cache.SetStatus(ctx, updated.ID, string(updated.Status)); err != nil {
			l.log.WarnContext(ctx, "status cache write failed", "order_id", updated.ID, "error", err)
		}
	}
	l.notify(ctx, updated.UserID, draftFor(updated, from, ch))
	return updated, nil
}

// retry re-runs fn while the store reports a stale order version.
func (l *Lifecycle) retry(ctx context.Context, orderID string, fn func() error) error {
	attempts := l.maxRetries + 1
	for i := 1; i <= attempts; i++ {
		err := fn()
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		transitionRetries.Inc()
		logging.FromCtx(ctx).DebugContext(ctx, "order version conflict, retrying", "order_id", orderID, "attempt", i)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return &ConcurrencyConflictError{OrderID: orderID, Attempts: attempts}
}

func (l *Lifecycle) lock(ctx context.Context, orderID string) (func(), error) {
	if l.locker == nil {
		return func() {}, nil
	}
	return l.locker.Lock(ctx, orderID)
}

// notify is fire-and-forget: the transition is already committed.
func (l *Lifecycle) notify(ctx context.Context, userID string, d NotificationDraft) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Emit(ctx, userID, d); err != nil {
		l.log.WarnContext(ctx, "notification emit failed",
			"order_id", d.OrderID, "user_id", userID, "type", d.Type, "error", err)
	}
}

func draftFor(o *domain.Order, from domain.Status, ch change) NotificationDraft {
	meta := map[string]any{
		"status":         string(o.Status),
		"previousStatus": string(from),
	}
	if ch.actor != "" {
		meta["actor"] = ch.actor
	}
	if ch.reason != "" {
		meta["reason"] = ch.reason
	}

	if ch.kind == domain.NotificationOrderRejected {
		return NotificationDraft{
			Type:     domain.NotificationOrderRejected,
			OrderID:  o.ID,
			Title:    "Order rejected",
			Message:  fmt.Sprintf("Your order %s was rejected: %s", shortID(o.ID), ch.reason),
			Metadata: meta,
		}
	}

	t := statusTemplates[o.Status]
	msg := fmt.Sprintf(t.message, shortID(o.ID))
	if ch.reason != "" && (o.Status == domain.StatusCancelled || o.Status == domain.StatusRefunded) {
		msg += " Reason: " + ch.reason
	}
	return NotificationDraft{
		Type:     domain.NotificationOrderStatus,
		OrderID:  o.ID,
		Title:    t.title,
		Message:  msg,
		Metadata: meta,
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return "#" + id[:8]
	}
	return "#" + id
}
