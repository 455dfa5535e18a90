package httpserver

import (
	"context"
	"net/http"
	"time"

	"casedesk/internal/handler"
	"casedesk/pkg/otel"
	"casedesk/pkg/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessChecker reports whether the backing store can serve requests.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	notificationHandler *handler.NotificationHandler,
	adminHandler *handler.AdminHandler,
	ready ReadinessChecker,
	jwtSecret string,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceID(), otel.GinMiddleware(), RequestLogger(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := ready.Ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_not_ready", "error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtSecret))

	notifications := api.Group("/notifications")
	{
		notifications.GET("", RequirePermission(rbac.PermissionReadNotification), notificationHandler.List)
		notifications.GET("/unread-count", RequirePermission(rbac.PermissionReadNotification), notificationHandler.UnreadCount)
		notifications.PATCH("/read-all", RequirePermission(rbac.PermissionUpdateNotification), notificationHandler.MarkAllAsRead)
		notifications.PATCH("/:id/read", RequirePermission(rbac.PermissionUpdateNotification), notificationHandler.MarkAsRead)
		notifications.DELETE("/read", RequirePermission(rbac.PermissionDeleteNotification), notificationHandler.DeleteAllRead)
		notifications.DELETE("/:id", RequirePermission(rbac.PermissionDeleteNotification), notificationHandler.Delete)
	}

	admin := api.Group("/admin")
	admin.Use(RequirePermission(rbac.PermissionCreateNotification))
	{
		admin.POST("/notifications", adminHandler.CreateNotifications)
	}

	return &Router{Engine: r}
}

// Server wraps the engine in an http.Server so the caller can shut it down.
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
