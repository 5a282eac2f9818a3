package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipping  Status = "shipping"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var (
	ErrUnknownStatus   = errors.New("unknown order status")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyOrder      = errors.New("order has no items")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrMissingShipping = errors.New("shipping address incomplete")
)

// legacyStatus maps the customer-side status names onto the canonical enum.
var legacyStatus = map[string]Status{
	"processing": StatusConfirmed,
	"delivered":  StatusCompleted,
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipping, StatusCancelled, StatusRefunded},
	StatusShipping:  {StatusCompleted, StatusCancelled, StatusRefunded},
	StatusCompleted: {StatusRefunded},
	StatusCancelled: nil,
	StatusRefunded:  nil,
}

// ParseStatus normalizes s and resolves legacy aliases.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if st, ok := legacyStatus[v]; ok {
		return st, nil
	}
	st := Status(v)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// HoldsStock reports whether an order in this status has inventory committed against it.
func (s Status) HoldsStock() bool {
	switch s {
	case StatusConfirmed, StatusShipping, StatusCompleted:
		return true
	}
	return false
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// LineItem is a snapshot taken at checkout; later product edits never touch it.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a ShippingAddress) complete() bool {
	return a.FullName != "" && a.Line1 != "" && a.City != "" && a.Country != ""
}

type Order struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Items        []LineItem      `json:"items"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Shipping     ShippingAddress `json:"shipping"`
	Status       Status          `json:"status"`
	Note         string          `json:"note,omitempty"`
	CancelReason string          `json:"cancelReason,omitempty"`
	Payment      json.RawMessage `json:"payment,omitempty"`
	Version      int64           `json:"version"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.Items {
		total = total.Add(li.Subtotal())
	}
	return total
}

func (o *Order) Validate() error {
	if len(o.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, li := range o.Items {
		if li.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if li.UnitPrice.IsNegative() {
			return ErrInvalidAmount
		}
	}
	if o.TotalAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if !o.Shipping.complete() {
		return ErrMissingShipping
	}
	return nil
}

// Clone returns a deep copy so stores can hand out orders without aliasing.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	if o.Payment != nil {
		c.Payment = append(json.RawMessage(nil), o.Payment...)
	}
	return &c
}
