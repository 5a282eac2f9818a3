package observability

import (
	"context"
	"testing"
	"time"

	"github.com/aq2208/storefront-api/configs"
	"github.com/aq2208/storefront-api/internal/adapter/memstore"
	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestSetupTracingDisabled(t *testing.T) {
	var cfg configs.Config
	shutdown, err := SetupTracing(context.Background(), cfg, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestLifecycleSpansReachProvider(t *testing.T) {
	var cfg configs.Config
	cfg.App.Name = "storefront-api"

	exp := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(cfg, "test", sdktrace.WithSyncer(exp))
	require.NoError(t, err)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := context.Background()
	store := memstore.New()
	now := time.Now().UTC()
	require.NoError(t, store.Products().Create(ctx, &domain.Product{
		ID: "p1", Name: "Mug", Price: decimal.NewFromInt(4), StockQuantity: 3,
		Status: domain.ProductActive, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.Orders().Create(ctx, &domain.Order{
		ID: "o1", UserID: "u1", Status: domain.StatusPending, Version: 1,
		Items:       []domain.LineItem{{ProductID: "p1", Name: "Mug", Quantity: 2, UnitPrice: decimal.NewFromInt(4)}},
		TotalAmount: decimal.NewFromInt(8),
		Shipping:    domain.ShippingAddress{FullName: "A", Line1: "1 St", City: "C", Country: "US"},
		CreatedAt:   now, UpdatedAt: now,
	}))

	lc := usecase.NewLifecycle(store, nil, nil)
	_, err = lc.Transition(ctx, usecase.TransitionInput{OrderID: "o1", To: "confirmed", Actor: "admin"})
	require.NoError(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "order.transition", span.Name)
	assert.Contains(t, span.Attributes, attribute.String("order.id", "o1"))
	assert.Contains(t, span.Attributes, attribute.String("order.from", "pending"))

	svc, ok := span.Resource.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "storefront-api", svc.AsString())
}
