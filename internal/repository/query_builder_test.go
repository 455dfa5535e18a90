package repository

import (
	"strings"
	"testing"

	"casedesk/internal/model"

	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildWhere(t *testing.T) {
	task := model.CategoryTask
	tests := []struct {
		name     string
		filter   model.Filter
		wantSQL  string
		wantArgs int
	}{
		{"owner only", model.Filter{}, "owner_id = $1", 1},
		{"unread", model.Filter{IsRead: model.Bool(false)}, "owner_id = $1 AND is_read = $2", 2},
		{"unread task", model.Filter{IsRead: model.Bool(false), Category: &task}, "owner_id = $1 AND is_read = $2 AND category = $3", 3},
		{"category only", model.Filter{Category: &task}, "owner_id = $1 AND category = $2", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildWhere("u1", tt.filter)
			if where != tt.wantSQL {
				t.Errorf("where = %q, want %q", where, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
			if args[0] != "u1" {
				t.Errorf("owner must be the first argument, got %v", args[0])
			}
		})
	}
}

func TestBuildSetContinuesPlaceholders(t *testing.T) {
	_, args := buildWhere("u1", model.Filter{IsRead: model.Bool(false)})
	set, args := buildSet(model.Patch{IsRead: model.Bool(true)}, args)

	if len(args) != 4 {
		t.Fatalf("len(args) = %d, want 4", len(args))
	}
	if !strings.Contains(set, "$3::boolean") || !strings.Contains(set, "$4::timestamptz") {
		t.Errorf("set clause uses wrong placeholders: %s", set)
	}
	if !strings.Contains(set, "IS DISTINCT FROM") {
		t.Error("updated_at must only move when is_read changes")
	}
}

func TestMongoFilter(t *testing.T) {
	deadline := model.CategoryDeadline
	got := mongoFilter("u1", model.Filter{IsRead: model.Bool(true), Category: &deadline})

	want := bson.M{"owner": "u1", "isRead": true, "type": "deadline"}
	if len(got) != len(want) {
		t.Fatalf("filter = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestMongoUpdateEmptyPatch(t *testing.T) {
	if mongoUpdate(model.Patch{}) != nil {
		t.Error("empty patch should produce no update")
	}
	if len(mongoUpdate(model.Patch{IsRead: model.Bool(true)})) != 1 {
		t.Error("read patch should produce a single $set stage")
	}
}
