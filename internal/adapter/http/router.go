package http

import (
	"log/slog"
	"net/http"

	"github.com/aq2208/storefront-api/internal/adapter/http/middleware"
	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/aq2208/storefront-api/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Products      *ProductHandler
	Orders        *OrderHandler
	Notifications *NotificationHandler
	Token         *TokenHandler
}

func NewRouter(h Handlers, authz *middleware.Authz, l *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics())
	if l == nil {
		l = logging.New("http")
	}
	r.Use(middleware.Logging(l))

	r.GET("/healthz", func(c *gin.Context) {
		logging.From(c).Debug("health check")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/v1/token", h.Token.IssueToken)

	v1 := r.Group("/v1")
	{
		v1.GET("/products", h.Products.List)
		v1.GET("/products/:id", h.Products.Get)

		read := authz.Require(security.PermOrdersRead)
		write := authz.Require(security.PermOrdersWrite)
		v1.POST("/orders", write, h.Orders.CreateOrder)
		v1.GET("/orders", read, h.Orders.ListMine)
		v1.GET("/orders/:id", read, h.Orders.GetMine)
		v1.POST("/orders/:id/cancel", write, h.Orders.CancelMine)

		inbox := v1.Group("/notifications", authz.Require(security.PermNotificationsRead))
		inbox.GET("", h.Notifications.List)
		inbox.GET("/unread-count", h.Notifications.UnreadCount)
		inbox.POST("/read-all", h.Notifications.MarkAllRead)
		inbox.POST("/:id/read", h.Notifications.MarkRead)
		inbox.DELETE("/:id", h.Notifications.Delete)
	}

	admin := v1.Group("/admin", authz.Require(security.PermAdmin))
	{
		admin.POST("/products", h.Products.Create)
		admin.PATCH("/products/:id", h.Products.Update)
		admin.PUT("/products/:id/stock", h.Products.SetStock)
		admin.DELETE("/products/:id", h.Products.Delete)

		admin.GET("/orders", h.Orders.AdminList)
		admin.GET("/orders/:id", h.Orders.AdminGet)
		admin.GET("/orders/:id/status", h.Orders.AdminStatus)
		admin.PATCH("/orders/:id/status", h.Orders.UpdateStatus)
		admin.POST("/orders/:id/reject", h.Orders.Reject)
		admin.DELETE("/orders/:id", h.Orders.Delete)
	}

	return r
}
