package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDeriveProductStatus(t *testing.T) {
	tests := []struct {
		name    string
		current ProductStatus
		stock   int
		want    ProductStatus
	}{
		{"active with stock", ProductActive, 5, ProductActive},
		{"active sold out", ProductActive, 0, ProductOutOfStock},
		{"restocked", ProductOutOfStock, 3, ProductActive},
		{"still out", ProductOutOfStock, 0, ProductOutOfStock},
		{"inactive sold out", ProductInactive, 0, ProductInactive},
		{"inactive restocked", ProductInactive, 10, ProductInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveProductStatus(tc.current, tc.stock))
		})
	}
}

func TestProductValidate(t *testing.T) {
	p := &Product{Name: "Mug", Price: decimal.RequireFromString("4.99"), StockQuantity: 3, Status: ProductActive}
	assert.NoError(t, p.Validate())

	bad := p.Clone()
	bad.Name = ""
	assert.ErrorIs(t, bad.Validate(), ErrProductName)

	bad = p.Clone()
	bad.Price = decimal.NewFromInt(-1)
	assert.ErrorIs(t, bad.Validate(), ErrNegativePrice)

	bad = p.Clone()
	bad.StockQuantity = -1
	assert.ErrorIs(t, bad.Validate(), ErrNegativeStock)

	bad = p.Clone()
	bad.Status = "archived"
	assert.ErrorIs(t, bad.Validate(), ErrProductStatus)
}
