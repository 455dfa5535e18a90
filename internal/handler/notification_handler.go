package handler

import (
	"errors"
	"net/http"

	"casedesk/internal/model"
	"casedesk/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		svc:    svc,
		logger: logger,
	}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}

	q := service.ParseListQuery(
		c.Query("unread"),
		c.Query("type"),
		c.Query("limit"),
		c.Query("skip"),
	)
	res, err := h.svc.ListNotifications(c.Request.Context(), owner, q)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}

	count, err := h.svc.GetUnreadCount(c.Request.Context(), owner)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkAsRead handles PATCH /api/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}

	n, err := h.svc.MarkAsRead(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, n)
}

// MarkAllAsRead handles PATCH /api/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}

	modified, err := h.svc.MarkAllAsRead(c.Request.Context(), owner)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"modifiedCount": modified})
}

// Delete handles DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}

	n, err := h.svc.DeleteNotification(c.Request.Context(), c.Param("id"), owner)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, n)
}

// DeleteAllRead handles DELETE /api/notifications/read
func (h *NotificationHandler) DeleteAllRead(c *gin.Context) {
	owner, ok := ownerFrom(c)
	if !ok {
		return
	}

	deleted, err := h.svc.DeleteAllRead(c.Request.Context(), owner)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deletedCount": deleted})
}

func (h *NotificationHandler) fail(c *gin.Context, err error) {
	respondError(c, h.logger, err)
}

func ownerFrom(c *gin.Context) (string, bool) {
	owner := c.GetString(ContextUserID)
	if owner == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return "", false
	}
	return owner, true
}

// respondError maps service errors onto HTTP statuses. Internal details are
// logged, not returned.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
	case errors.Is(err, model.ErrStoreUnavailable):
		logger.Error("Notification store unavailable",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification store unavailable"})
	default:
		logger.Error("Notification request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
