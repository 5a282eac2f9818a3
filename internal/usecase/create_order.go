package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/google/uuid"
)

type CreateOrderItem struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	UserID         string
	IdempotencyKey string
	Items          []CreateOrderItem
	Shipping       domain.ShippingAddress
	Note           string
	Payment        json.RawMessage
}

type CreateOrderOutput struct {
	Order    *domain.Order
	Replayed bool
}

// CreateOrder places a pending order. Prices are captured from the catalog
// at this point; stock is only checked here and committed on confirmation.
type CreateOrder struct {
	store Store
	idem  IdempotencyStore
	sink  NotificationSink
	now   func() time.Time
}

func NewCreateOrder(store Store, idem IdempotencyStore, sink NotificationSink) *CreateOrder {
	return &CreateOrder{store: store, idem: idem, sink: sink, now: time.Now}
}

func (uc *CreateOrder) Execute(ctx context.Context, in CreateOrderInput) (CreateOrderOutput, error) {
	if in.UserID == "" {
		return CreateOrderOutput{}, invalid("userId", "required")
	}
	useIdem := uc.idem != nil && in.IdempotencyKey != ""

	if useIdem {
		// Fast path: idempotency recall
		if id, ok, _ := uc.idem.Recall(ctx, in.UserID, in.IdempotencyKey); ok {
			o, err := uc.store.Orders().GetByID(ctx, id)
			if err == nil {
				return CreateOrderOutput{Order: o, Replayed: true}, nil
			}
		}
		ok, err := uc.idem.TryLock(ctx, in.UserID, in.IdempotencyKey)
		if err != nil {
			return CreateOrderOutput{}, err
		}
		if !ok {
			return CreateOrderOutput{}, ErrDuplicate
		}
	}

	o, err := uc.place(ctx, in)
	if err != nil {
		if useIdem {
			// let the client retry the same key after fixing the request
			_ = uc.idem.Release(ctx, in.UserID, in.IdempotencyKey)
		}
		return CreateOrderOutput{}, err
	}

	if useIdem {
		_ = uc.idem.Remember(ctx, in.UserID, in.IdempotencyKey, o.ID)
	}

	log := logging.FromCtx(ctx)
	log.InfoContext(ctx, "order placed", "order_id", o.ID, "user_id", o.UserID, "items", len(o.Items), "total", o.TotalAmount.String())

	if uc.sink != nil {
		if err := uc.sink.Emit(ctx, o.UserID, NotificationDraft{
			Type:    domain.NotificationOrderPlaced,
			OrderID: o.ID,
			Title:   "Order placed",
			Message: fmt.Sprintf("We received your order %s totalling %s.", shortID(o.ID), o.TotalAmount.StringFixed(2)),
			Metadata: map[string]any{
				"status": string(o.Status),
				"total":  o.TotalAmount.StringFixed(2),
			},
		}); err != nil {
			log.WarnContext(ctx, "notification emit failed", "order_id", o.ID, "error", err)
		}
	}
	return CreateOrderOutput{Order: o}, nil
}

func (uc *CreateOrder) place(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, invalid("items", "at least one item required")
	}
	if len(in.Payment) > 0 && !json.Valid(in.Payment) {
		return nil, invalid("payment", "must be a JSON document")
	}

	requested := make(map[string]int, len(in.Items))
	items := make([]domain.LineItem, 0, len(in.Items))
	for i, it := range in.Items {
		if it.ProductID == "" {
			return nil, invalid(fmt.Sprintf("items[%d].productId", i), "required")
		}
		if it.Quantity < 1 {
			return nil, invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		p, err := uc.store.Products().GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Status == domain.ProductInactive {
			return nil, invalid(fmt.Sprintf("items[%d].productId", i), "product is not for sale")
		}
		requested[p.ID] += it.Quantity
		if p.StockQuantity < requested[p.ID] {
			return nil, &InsufficientStockError{ProductID: p.ID, Requested: requested[p.ID], Available: p.StockQuantity}
		}
		items = append(items, domain.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			UnitPrice: p.Price,
		})
	}

	now := uc.now().UTC()
	o := &domain.Order{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Items:     items,
		Shipping:  in.Shipping,
		Status:    domain.StatusPending,
		Note:      in.Note,
		Payment:   in.Payment,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.TotalAmount = o.ComputeTotal()
	if err := o.Validate(); err != nil {
		return nil, entityInvalid(err)
	}

	if err := uc.store.Orders().Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

// entityInvalid turns an entity validation error into a *ValidationError.
func entityInvalid(err error) error {
	field := ""
	switch {
	case errors.Is(err, domain.ErrEmptyOrder):
		field = "items"
	case errors.Is(err, domain.ErrInvalidQuantity):
		field = "quantity"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrNegativePrice):
		field = "price"
	case errors.Is(err, domain.ErrMissingShipping):
		field = "shipping"
	case errors.Is(err, domain.ErrProductName):
		field = "name"
	case errors.Is(err, domain.ErrNegativeStock):
		field = "stockQuantity"
	case errors.Is(err, domain.ErrProductStatus):
		field = "status"
	}
	return &ValidationError{Field: field, Reason: err.Error()}
}
