package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"casedesk/internal/model"
	"casedesk/internal/service"
	"casedesk/pkg/rbac"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewAdminHandler(svc *service.NotificationService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		svc:    svc,
		logger: logger,
	}
}

// CreateNotifications 为任意用户创建通知
// POST /api/admin/notifications
// 请求体为单个对象时创建一条，为数组时整批创建（全部成功或全部失败）
func (h *AdminHandler) CreateNotifications(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		h.createBulk(c, body)
		return
	}

	var in model.NotificationInput
	if err := json.Unmarshal(body, &in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n, err := h.svc.CreateNotification(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Notification created by admin",
		zap.String("actor", c.GetString(ContextUserID)),
		zap.String("owner", n.Owner),
		zap.String("id", n.ID),
	)
	c.JSON(http.StatusCreated, n)
}

func (h *AdminHandler) createBulk(c *gin.Context, body []byte) {
	actor := c.GetString(ContextUserID)
	if err := rbac.CheckPermission(actor, c.GetString(ContextRole), rbac.PermissionBulkCreateNotification); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	var ins []model.NotificationInput
	if err := json.Unmarshal(body, &ins); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	out, err := h.svc.CreateBulkNotifications(c.Request.Context(), ins)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Notifications bulk created by admin",
		zap.String("actor", actor),
		zap.Int("count", len(out)),
	)
	c.JSON(http.StatusCreated, gin.H{
		"notifications": out,
		"count":         len(out),
	})
}
