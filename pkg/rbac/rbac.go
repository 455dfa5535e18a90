package rbac

import "slices"

// 权限常量
const (
	// 普通操作权限：仅作用于调用者自己的通知
	PermissionReadNotification   = "notification:read"
	PermissionUpdateNotification = "notification:update"
	PermissionDeleteNotification = "notification:delete"

	// 敏感操作权限：为任意用户创建通知
	PermissionCreateNotification     = "notification:create"
	PermissionBulkCreateNotification = "notification:bulk_create"
)

// 角色常量
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system" // 内部生产者（任务、案件、计费模块）
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadNotification,
		PermissionUpdateNotification,
		PermissionDeleteNotification,
	},
	RoleAdmin: {
		PermissionReadNotification,
		PermissionUpdateNotification,
		PermissionDeleteNotification,
		PermissionCreateNotification,
		PermissionBulkCreateNotification,
	},
	RoleSystem: {
		PermissionCreateNotification,
		PermissionBulkCreateNotification,
	},
}

// NormalizeRole 空角色视为普通用户
func NormalizeRole(role string) string {
	if role == "" {
		return RoleUser
	}
	return role
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[NormalizeRole(role)]
	if !ok {
		return false
	}
	return slices.Contains(permissions, permission)
}

// CheckPermission 检查用户是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       NormalizeRole(role),
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
