package http

import (
	"errors"
	"net/http"

	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/aq2208/storefront-api/internal/usecase"
	"github.com/gin-gonic/gin"
)

// respondError maps use case errors onto status codes. Unknown errors are
// logged and reported as a bare 500.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}

	var (
		verr  *usecase.ValidationError
		nf    *usecase.NotFoundError
		stock *usecase.InsufficientStockError
		trans *usecase.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		body["code"] = "validation_failed"
		if verr.Field != "" {
			body["field"] = verr.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, usecase.ErrValidation):
		body["code"] = "validation_failed"
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &nf):
		body["code"] = "not_found"
		body["kind"] = nf.Kind
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, usecase.ErrNotFound):
		body["code"] = "not_found"
		c.JSON(http.StatusNotFound, body)
	case errors.As(err, &stock):
		body["code"] = "insufficient_stock"
		body["productId"] = stock.ProductID
		body["requested"] = stock.Requested
		body["available"] = stock.Available
		c.JSON(http.StatusConflict, body)
	case errors.As(err, &trans):
		body["code"] = "invalid_transition"
		body["from"] = trans.From
		body["to"] = trans.To
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, usecase.ErrConcurrencyConflict):
		body["code"] = "concurrency_conflict"
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, usecase.ErrDuplicate):
		body["code"] = "duplicate_request"
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, usecase.ErrInUse):
		body["code"] = "in_use"
		c.JSON(http.StatusConflict, body)
	default:
		_ = c.Error(err)
		logging.From(c).ErrorContext(c.Request.Context(), "request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": "internal_error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}
