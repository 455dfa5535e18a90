package service

import (
	"testing"

	"casedesk/internal/model"
)

func TestParseListQuery(t *testing.T) {
	tests := []struct {
		name                     string
		unread, typ, limit, skip string
		wantUnread               *bool
		wantType                 *model.Category
		wantLimit, wantSkip      int
	}{
		{name: "defaults", wantLimit: 20},
		{name: "explicit", unread: "true", typ: "task", limit: "5", skip: "10",
			wantUnread: model.Bool(true), wantType: ptr(model.CategoryTask), wantLimit: 5, wantSkip: 10},
		{name: "numeric unread", unread: "0", wantUnread: model.Bool(false), wantLimit: 20},
		{name: "garbage unread ignored", unread: "maybe", wantLimit: 20},
		{name: "non numeric limit", limit: "abc", skip: "x", wantLimit: 20},
		{name: "zero limit", limit: "0", wantLimit: 20},
		{name: "negative values", limit: "-5", skip: "-1", wantLimit: 20},
		{name: "unknown type filters by raw value", typ: " Bogus ", wantType: ptr(model.Category("bogus")), wantLimit: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ParseListQuery(tt.unread, tt.typ, tt.limit, tt.skip)
			if !equalBool(q.Unread, tt.wantUnread) {
				t.Errorf("Unread = %v, want %v", deref(q.Unread), deref(tt.wantUnread))
			}
			if (q.Type == nil) != (tt.wantType == nil) || (q.Type != nil && *q.Type != *tt.wantType) {
				t.Errorf("Type = %v, want %v", q.Type, tt.wantType)
			}
			if q.Limit != tt.wantLimit || q.Skip != tt.wantSkip {
				t.Errorf("limit/skip = %d/%d, want %d/%d", q.Limit, q.Skip, tt.wantLimit, tt.wantSkip)
			}
		})
	}
}

func TestListQueryFilterInvertsUnread(t *testing.T) {
	f := ListQuery{Unread: model.Bool(true)}.filter()
	if f.IsRead == nil || *f.IsRead {
		t.Errorf("unread=true should filter isRead=false, got %v", f.IsRead)
	}
	if (ListQuery{}).filter().IsRead != nil {
		t.Error("absent unread should not filter")
	}
}

func ptr[T any](v T) *T { return &v }

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
