package model

import (
	"strings"
	"time"
)

// RetentionPeriod 通知自 createdAt 起的保留时长，过期后由存储层删除
const RetentionPeriod = 90 * 24 * time.Hour

// DefaultPageLimit 列表查询的默认分页大小
const DefaultPageLimit = 20

// Category 通知类别
type Category string

const (
	CategoryInfo     Category = "info"
	CategorySuccess  Category = "success"
	CategoryWarning  Category = "warning"
	CategoryError    Category = "error"
	CategoryTask     Category = "task"
	CategoryDeadline Category = "deadline"
	CategoryCase     Category = "case"
	CategoryMessage  Category = "message"
	CategorySystem   Category = "system"
)

var categories = map[Category]struct{}{
	CategoryInfo: {}, CategorySuccess: {}, CategoryWarning: {}, CategoryError: {},
	CategoryTask: {}, CategoryDeadline: {}, CategoryCase: {}, CategoryMessage: {},
	CategorySystem: {},
}

// ParseCategory 解析类别，空字符串返回默认值 info
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return CategoryInfo, true
	}
	c := Category(s)
	_, ok := categories[c]
	return c, ok
}

// Priority 通知优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority 解析优先级，空字符串返回默认值 medium
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, true
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, true
	default:
		return p, false
	}
}

// Notification 站内通知记录
type Notification struct {
	ID        string         `json:"id" bson:"_id"`
	Owner     string         `json:"owner" bson:"owner"`
	Title     string         `json:"title" bson:"title"`
	Message   string         `json:"message" bson:"message"`
	Category  Category       `json:"type" bson:"type"`
	Link      string         `json:"link,omitempty" bson:"link,omitempty"`
	IsRead    bool           `json:"isRead" bson:"isRead"`
	Priority  Priority       `json:"priority" bson:"priority"`
	Metadata  map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// NotificationInput 创建通知的请求体，owner/title/message 必填
type NotificationInput struct {
	Owner    string         `json:"owner"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Type     string         `json:"type,omitempty"`
	Link     string         `json:"link,omitempty"`
	Priority string         `json:"priority,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Normalize trims the input, applies the category and priority defaults and
// reports the first missing or invalid field.
func (in NotificationInput) Normalize() (NotificationInput, error) {
	in.Owner = strings.TrimSpace(in.Owner)
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	in.Link = strings.TrimSpace(in.Link)

	switch {
	case in.Owner == "":
		return in, &ValidationError{Index: -1, Field: "owner", Reason: "is required"}
	case in.Title == "":
		return in, &ValidationError{Index: -1, Field: "title", Reason: "is required"}
	case in.Message == "":
		return in, &ValidationError{Index: -1, Field: "message", Reason: "is required"}
	}

	category, ok := ParseCategory(in.Type)
	if !ok {
		return in, &ValidationError{Index: -1, Field: "type", Reason: "unknown value " + in.Type}
	}
	priority, ok := ParsePriority(in.Priority)
	if !ok {
		return in, &ValidationError{Index: -1, Field: "priority", Reason: "unknown value " + in.Priority}
	}
	in.Type = string(category)
	in.Priority = string(priority)
	return in, nil
}

// ValidateBatch normalizes every input and fails on the first offending record,
// so a batch is either fully valid or rejected as a whole.
func ValidateBatch(inputs []NotificationInput) ([]NotificationInput, error) {
	out := make([]NotificationInput, 0, len(inputs))
	for i, in := range inputs {
		n, err := in.Normalize()
		if err != nil {
			if ve, ok := err.(*ValidationError); ok {
				ve.Index = i
			}
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// NewNotification builds the stored record from a normalized input.
func NewNotification(in NotificationInput, id string, now time.Time) *Notification {
	now = now.UTC()
	return &Notification{
		ID:        id,
		Owner:     in.Owner,
		Title:     in.Title,
		Message:   in.Message,
		Category:  Category(in.Type),
		Link:      in.Link,
		IsRead:    false,
		Priority:  Priority(in.Priority),
		Metadata:  in.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ExpiresAt 过期时间
func (n *Notification) ExpiresAt() time.Time {
	return n.CreatedAt.Add(RetentionPeriod)
}

// Filter 查询条件，nil 字段表示不过滤
type Filter struct {
	IsRead   *bool
	Category *Category
}

// Page 分页参数
type Page struct {
	Limit  int
	Offset int
}

// Normalize 补齐默认分页参数
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Patch 更新字段，nil 表示不修改
type Patch struct {
	IsRead *bool
}

// Apply 将 patch 应用到记录上，返回是否有字段发生变化
func (p Patch) Apply(n *Notification, now time.Time) bool {
	changed := false
	if p.IsRead != nil && n.IsRead != *p.IsRead {
		n.IsRead = *p.IsRead
		changed = true
	}
	if changed {
		n.UpdatedAt = now.UTC()
	}
	return changed
}

// Matches 判断记录是否满足过滤条件
func (f Filter) Matches(n *Notification) bool {
	if f.IsRead != nil && n.IsRead != *f.IsRead {
		return false
	}
	if f.Category != nil && n.Category != *f.Category {
		return false
	}
	return true
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }
