package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductActive     ProductStatus = "active"
	ProductInactive   ProductStatus = "inactive"
	ProductOutOfStock ProductStatus = "out_of_stock"
)

var (
	ErrProductName   = errors.New("product name required")
	ErrNegativePrice = errors.New("price must not be negative")
	ErrNegativeStock = errors.New("stock quantity must not be negative")
	ErrProductStatus = errors.New("unknown product status")
)

func (s ProductStatus) Valid() bool {
	switch s {
	case ProductActive, ProductInactive, ProductOutOfStock:
		return true
	}
	return false
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	Status        ProductStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DeriveProductStatus is the only place product status follows stock.
// An inactive product stays inactive whatever its stock.
func DeriveProductStatus(current ProductStatus, stock int) ProductStatus {
	if current == ProductInactive {
		return ProductInactive
	}
	if stock <= 0 {
		return ProductOutOfStock
	}
	return ProductActive
}

func (p *Product) Validate() error {
	if p.Name == "" {
		return ErrProductName
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	if p.StockQuantity < 0 {
		return ErrNegativeStock
	}
	if !p.Status.Valid() {
		return ErrProductStatus
	}
	return nil
}

func (p *Product) Clone() *Product {
	c := *p
	return &c
}
