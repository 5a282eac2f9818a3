package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aq2208/storefront-api/internal/adapter/http/middleware"
	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	create    *usecase.CreateOrder
	lifecycle *usecase.Lifecycle
	query     *usecase.OrderQueries
	timeout   time.Duration
}

func NewOrderHandler(create *usecase.CreateOrder, lifecycle *usecase.Lifecycle, query *usecase.OrderQueries, timeout time.Duration) *OrderHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OrderHandler{create: create, lifecycle: lifecycle, query: query, timeout: timeout}
}

type createOrderReq struct {
	Items []struct {
		ProductID string `json:"productId" binding:"required"`
		Quantity  int    `json:"quantity" binding:"required,gt=0"`
	} `json:"items" binding:"required,min=1,dive"`
	Shipping domain.ShippingAddress `json:"shipping"`
	Note     string                 `json:"note"`
	Payment  json.RawMessage        `json:"payment"`
}

// CreateOrder handler: translate to use case input
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	idemKey := c.GetHeader("X-Idempotency-Key") // prevent duplicated requests

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	in := usecase.CreateOrderInput{
		UserID:         middleware.Subject(c),
		IdempotencyKey: idemKey,
		Shipping:       req.Shipping,
		Note:           req.Note,
		Payment:        req.Payment,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, usecase.CreateOrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	out, err := h.create.Execute(ctx, in)
	if err != nil {
		respondError(c, err)
		return
	}
	if out.Replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, out.Order)
		return
	}
	c.JSON(http.StatusCreated, out.Order)
}

func (h *OrderHandler) ListMine(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		return
	}
	orders, err := h.query.ListForUser(c.Request.Context(), middleware.Subject(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": orders, "count": len(orders)})
}

func (h *OrderHandler) GetMine(c *gin.Context) {
	o, err := h.query.GetForUser(c.Request.Context(), middleware.Subject(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) CancelMine(c *gin.Context) {
	var req reasonReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.lifecycle.CancelByCustomer(ctx, middleware.Subject(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// GET /v1/admin/orders?status=&limit=&offset=
func (h *OrderHandler) AdminList(c *gin.Context) {
	limit, offset, err := paging(c)
	if err != nil {
		return
	}
	orders, err := h.query.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": orders, "count": len(orders)})
}

func (h *OrderHandler) AdminGet(c *gin.Context) {
	o, err := h.query.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// AdminStatus is the lightweight status lookup; it reads through the status cache.
func (h *OrderHandler) AdminStatus(c *gin.Context) {
	id := c.Param("id")
	st, err := h.query.Status(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": st})
}

type statusReq struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.lifecycle.Transition(ctx, usecase.TransitionInput{
		OrderID: c.Param("id"),
		To:      req.Status,
		Reason:  req.Reason,
		Actor:   middleware.Subject(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) Reject(c *gin.Context) {
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.lifecycle.Reject(ctx, c.Param("id"), req.Reason, middleware.Subject(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) Delete(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.lifecycle.Delete(ctx, c.Param("id"), middleware.Subject(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
