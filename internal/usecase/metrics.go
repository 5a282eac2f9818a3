package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Order status transition attempts by outcome",
		},
		[]string{"from", "to", "result"},
	)

	stockAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_stock_adjustments_total",
			Help: "Per-product stock adjustments made by reconciliation",
		},
		[]string{"op"},
	)

	transitionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_order_transition_retries_total",
			Help: "Lifecycle retries caused by optimistic version conflicts",
		},
	)
)
