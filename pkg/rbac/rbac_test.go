package rbac

import (
	"errors"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{"", PermissionReadNotification, true},
		{RoleUser, PermissionDeleteNotification, true},
		{RoleUser, PermissionCreateNotification, false},
		{RoleAdmin, PermissionBulkCreateNotification, true},
		{RoleSystem, PermissionCreateNotification, true},
		{RoleSystem, PermissionReadNotification, false},
		{"superuser", PermissionReadNotification, false},
	}
	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.permission); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
			}
		})
	}
}

func TestCheckPermission(t *testing.T) {
	if err := CheckPermission("u1", RoleAdmin, PermissionCreateNotification); err != nil {
		t.Errorf("admin denied: %v", err)
	}

	err := CheckPermission("u1", "", PermissionBulkCreateNotification)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want PermissionDeniedError", err)
	}
	if denied.Role != RoleUser || denied.UserID != "u1" {
		t.Errorf("denied = %+v", denied)
	}
}
