package usecase_test

import (
	"context"
	"testing"

	"github.com/aq2208/storefront-api/internal/adapter/memstore"
	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commit(t *testing.T, s usecase.Store, inv *usecase.Inventory, o *domain.Order) error {
	t.Helper()
	return s.WithinTx(context.Background(), func(tx usecase.Tx) error {
		return inv.Commit(context.Background(), tx.Products(), o)
	})
}

func release(t *testing.T, s usecase.Store, inv *usecase.Inventory, o *domain.Order) error {
	t.Helper()
	return s.WithinTx(context.Background(), func(tx usecase.Tx) error {
		return inv.Release(context.Background(), tx.Products(), o)
	})
}

func TestCommitDecrementsEveryLine(t *testing.T) {
	s := memstore.New()
	inv := usecase.NewInventory(nil)
	addProduct(t, s, "p1", 5)
	addProduct(t, s, "p2", 3)
	o := &domain.Order{ID: "o1", Items: []domain.LineItem{item("p1", 2), item("p2", 3)}}

	require.NoError(t, commit(t, s, inv, o))
	assert.Equal(t, 3, stockOf(t, s, "p1"))
	assert.Equal(t, 0, stockOf(t, s, "p2"))

	p2, err := s.Products().GetByID(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductOutOfStock, p2.Status)
}

func TestCommitInsufficientStockMutatesNothing(t *testing.T) {
	s := memstore.New()
	inv := usecase.NewInventory(nil)
	addProduct(t, s, "p1", 10)
	addProduct(t, s, "p2", 2)
	o := &domain.Order{ID: "o1", Items: []domain.LineItem{item("p1", 4), item("p2", 3)}}

	err := commit(t, s, inv, o)
	var ise *usecase.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "p2", ise.ProductID)
	assert.Equal(t, 3, ise.Requested)
	assert.Equal(t, 2, ise.Available)

	assert.Equal(t, 10, stockOf(t, s, "p1"))
	assert.Equal(t, 2, stockOf(t, s, "p2"))
}

func TestCommitAggregatesRepeatedProduct(t *testing.T) {
	s := memstore.New()
	inv := usecase.NewInventory(nil)
	addProduct(t, s, "p1", 3)
	o := &domain.Order{ID: "o1", Items: []domain.LineItem{item("p1", 2), item("p1", 2)}}

	require.ErrorIs(t, commit(t, s, inv, o), usecase.ErrInsufficientStock)
	assert.Equal(t, 3, stockOf(t, s, "p1"))
}

func TestCommitMissingProduct(t *testing.T) {
	s := memstore.New()
	inv := usecase.NewInventory(nil)
	addProduct(t, s, "p1", 3)
	o := &domain.Order{ID: "o1", Items: []domain.LineItem{item("p1", 1), item("gone", 1)}}

	err := commit(t, s, inv, o)
	var nf *usecase.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Kind)
	assert.Equal(t, 3, stockOf(t, s, "p1"))
}

func TestReleaseSkipsMissingProducts(t *testing.T) {
	s := memstore.New()
	inv := usecase.NewInventory(nil)
	addProduct(t, s, "p1", 0)
	o := &domain.Order{ID: "o1", Items: []domain.LineItem{item("gone", 4), item("p1", 2)}}

	require.NoError(t, release(t, s, inv, o))
	assert.Equal(t, 2, stockOf(t, s, "p1"))

	p1, err := s.Products().GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductActive, p1.Status, "restock flips out_of_stock back to active")
}

func TestCommitReleaseRoundTrip(t *testing.T) {
	s := memstore.New()
	inv := usecase.NewInventory(nil)
	before := map[string]int{"p1": 7, "p2": 1, "p3": 12}
	for id, q := range before {
		addProduct(t, s, id, q)
	}
	o := &domain.Order{ID: "o1", Items: []domain.LineItem{item("p1", 7), item("p2", 1), item("p3", 5), item("p3", 2)}}

	require.NoError(t, commit(t, s, inv, o))
	for id := range before {
		assert.GreaterOrEqual(t, stockOf(t, s, id), 0)
	}
	require.NoError(t, release(t, s, inv, o))
	for id, q := range before {
		assert.Equal(t, q, stockOf(t, s, id), id)
	}
}

func TestStockNeverNegativeAcrossSequences(t *testing.T) {
	s := memstore.New()
	inv := usecase.NewInventory(nil)
	addProduct(t, s, "p1", 5)

	orders := []*domain.Order{
		{ID: "a", Items: []domain.LineItem{item("p1", 3)}},
		{ID: "b", Items: []domain.LineItem{item("p1", 3)}},
		{ID: "c", Items: []domain.LineItem{item("p1", 2)}},
		{ID: "d", Items: []domain.LineItem{item("p1", 1)}},
	}
	committed := 0
	for _, o := range orders {
		if err := commit(t, s, inv, o); err == nil {
			committed++
		} else {
			assert.ErrorIs(t, err, usecase.ErrInsufficientStock)
		}
		assert.GreaterOrEqual(t, stockOf(t, s, "p1"), 0)
	}
	assert.Equal(t, 2, committed)
	assert.Equal(t, 0, stockOf(t, s, "p1"))
}
