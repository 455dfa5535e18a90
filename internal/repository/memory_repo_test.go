package repository

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"casedesk/internal/model"

	"go.uber.org/zap"
)

// stepClock returns a time source that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	return NewMemoryStore(zap.NewNop()).WithClock(stepClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func input(owner, title string) model.NotificationInput {
	return model.NotificationInput{Owner: owner, Title: title, Message: "message for " + title}
}

func TestMemoryStoreCreateAssignsIdentity(t *testing.T) {
	s := newTestMemoryStore(t)

	n, err := s.Create(t.Context(), input("u1", "first"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.ID == "" {
		t.Error("id not assigned")
	}
	if n.CreatedAt.IsZero() || !n.CreatedAt.Equal(n.UpdatedAt) {
		t.Errorf("timestamps not initialised: %v %v", n.CreatedAt, n.UpdatedAt)
	}
	if n.IsRead {
		t.Error("new notification must be unread")
	}
}

func TestMemoryStoreCreateManyIsAtomic(t *testing.T) {
	s := newTestMemoryStore(t)

	_, err := s.CreateMany(t.Context(), []model.NotificationInput{
		input("u1", "a"),
		{Owner: "u1", Title: "b"},
	})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	count, _ := s.Count(t.Context(), "u1", model.Filter{})
	if count != 0 {
		t.Errorf("partial batch persisted: %d records", count)
	}
}

func TestMemoryStorePagination(t *testing.T) {
	s := newTestMemoryStore(t)
	for i := range 45 {
		if _, err := s.Create(t.Context(), input("u1", fmt.Sprintf("n%02d", i))); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := s.Create(t.Context(), input("u2", "other")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	seen := make(map[string]bool)
	var all []*model.Notification
	for _, offset := range []int{0, 20, 40} {
		page, total, err := s.Find(t.Context(), "u1", model.Filter{}, model.Page{Limit: 20, Offset: offset})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if total != 45 {
			t.Errorf("total = %d, want 45", total)
		}
		for _, n := range page {
			if seen[n.ID] {
				t.Errorf("duplicate record %s", n.ID)
			}
			seen[n.ID] = true
		}
		all = append(all, page...)
	}

	if len(all) != 45 {
		t.Fatalf("got %d records, want 45", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("records not newest first at %d", i)
		}
	}
	if all[0].Title != "n44" || all[44].Title != "n00" {
		t.Errorf("unexpected order: first %q last %q", all[0].Title, all[44].Title)
	}
}

func TestMemoryStoreOwnershipIsolation(t *testing.T) {
	s := newTestMemoryStore(t)
	n, _ := s.Create(t.Context(), input("alice", "private"))

	if _, err := s.UpdateOneByOwner(t.Context(), n.ID, "bob", model.Patch{IsRead: model.Bool(true)}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("update by other owner: got %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteOneByOwner(t.Context(), n.ID, "bob"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("delete by other owner: got %v, want ErrNotFound", err)
	}
	if got, _ := s.UpdateManyByOwner(t.Context(), "bob", model.Filter{}, model.Patch{IsRead: model.Bool(true)}); got != 0 {
		t.Errorf("bulk update by other owner matched %d", got)
	}
	if got, _ := s.DeleteManyByOwner(t.Context(), "bob", model.Filter{}); got != 0 {
		t.Errorf("bulk delete by other owner deleted %d", got)
	}

	items, total, _ := s.Find(t.Context(), "alice", model.Filter{}, model.Page{})
	if total != 1 || items[0].IsRead {
		t.Errorf("alice's record was touched: total=%d items=%+v", total, items)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := newTestMemoryStore(t)
	n, _ := s.Create(t.Context(), input("u1", "copy"))
	n.Title = "mutated"

	items, _, _ := s.Find(t.Context(), "u1", model.Filter{}, model.Page{})
	if items[0].Title != "copy" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestMemoryStoreDeleteCreatedBefore(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(zap.NewNop()).WithClock(stepClock(start))
	old, _ := s.Create(t.Context(), input("u1", "old"))
	fresh, _ := s.Create(t.Context(), input("u1", "fresh"))

	deleted, err := s.DeleteCreatedBefore(t.Context(), fresh.CreatedAt)
	if err != nil {
		t.Fatalf("DeleteCreatedBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := s.DeleteOneByOwner(t.Context(), old.ID, "u1"); !errors.Is(err, model.ErrNotFound) {
		t.Error("old record should be gone")
	}
}
