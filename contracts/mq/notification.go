package mq

import "time"

// Routing keys consumed by the notification service.
const (
	RoutingKeyNotificationCreated     = "notification.created"
	RoutingKeyNotificationBulkCreated = "notification.bulk_created"
)

// NotificationCreatedPayload 生产者（任务、案件、计费模块）发布的单条通知创建事件
type NotificationCreatedPayload struct {
	EventID   string         `json:"event_id,omitempty"`
	Owner     string         `json:"owner"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type,omitempty"`
	Link      string         `json:"link,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// NotificationBulkCreatedPayload 批量创建事件，例如通知案件的全部经办人
type NotificationBulkCreatedPayload struct {
	EventID       string                       `json:"event_id,omitempty"`
	Notifications []NotificationCreatedPayload `json:"notifications"`
	CreatedAt     time.Time                    `json:"created_at,omitempty"`
}
