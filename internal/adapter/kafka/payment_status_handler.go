package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/aq2208/storefront-api/internal/usecase"
)

const paymentActor = "payment-gateway"

// OrderTransitioner is the part of usecase.Lifecycle this consumer drives.
type OrderTransitioner interface {
	Transition(ctx context.Context, in usecase.TransitionInput) (*domain.Order, error)
	Reject(ctx context.Context, orderID, reason, actor string) (*domain.Order, error)
}

type PaymentStatusHandler struct {
	Lifecycle OrderTransitioner
}

func NewPaymentStatusHandler(lc OrderTransitioner) *PaymentStatusHandler {
	return &PaymentStatusHandler{Lifecycle: lc}
}

// Handle maps a payment result onto the order. A nil return marks the
// message consumed, so only errors worth a redelivery are returned.
// A failed payment only cancels an order that is still pending; a late
// failure for an order already confirmed or shipped is acknowledged as is.
func (h *PaymentStatusHandler) Handle(ctx context.Context, ev usecase.PaymentStatusMsg) error {
	log := logging.FromCtx(ctx).With("order_id", ev.OrderID, "payment_status", ev.Status)

	in := usecase.TransitionInput{OrderID: ev.OrderID, Actor: paymentActor}
	if strings.EqualFold(ev.Status, "SUCCESS") {
		in.To = string(domain.StatusConfirmed)
	} else {
		in.To = string(domain.StatusCancelled)
		in.From = domain.StatusPending
		in.Reason = "payment " + strings.ToLower(ev.Status)
	}

	_, err := h.Lifecycle.Transition(ctx, in)
	var ise *usecase.InsufficientStockError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ise):
		// paid but cannot be fulfilled
		reason := fmt.Sprintf("insufficient stock for product %s", ise.ProductID)
		if _, rerr := h.Lifecycle.Reject(ctx, ev.OrderID, reason, paymentActor); rerr != nil && !errors.Is(rerr, usecase.ErrInvalidTransition) {
			return rerr
		}
		log.WarnContext(ctx, "paid order rejected", "reason", reason)
		return nil
	case errors.Is(err, usecase.ErrInvalidTransition):
		// redelivery of an event that was already applied
		log.InfoContext(ctx, "payment event ignored", "error", err)
		return nil
	case errors.Is(err, usecase.ErrNotFound), errors.Is(err, usecase.ErrValidation):
		log.WarnContext(ctx, "payment event dropped", "error", err)
		return nil
	default:
		return err
	}
}
