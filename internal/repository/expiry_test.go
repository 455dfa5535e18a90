package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"casedesk/internal/model"

	"go.uber.org/zap"
)

type fakeExpirer struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeExpirer) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestExpirySweeperCutoff(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeExpirer{deleted: 3}
	s := NewExpirySweeper(f, zap.NewNop()).WithClock(func() time.Time { return now })

	if got := s.Sweep(t.Context()); got != 3 {
		t.Errorf("Sweep = %d, want 3", got)
	}
	if want := now.Add(-model.RetentionPeriod); !f.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", f.cutoff, want)
	}
}

func TestExpirySweeperSwallowsErrors(t *testing.T) {
	f := &fakeExpirer{deleted: 5, err: errors.New("store down")}
	s := NewExpirySweeper(f, zap.NewNop())

	if got := s.Sweep(t.Context()); got != 0 {
		t.Errorf("Sweep = %d, want 0 on error", got)
	}
}

func TestExpirySweeperRemovesOnlyExpired(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(zap.NewNop()).WithClock(func() time.Time { return created })
	if _, err := store.Create(t.Context(), input("u1", "read and old")); err != nil {
		t.Fatal(err)
	}
	store.WithClock(func() time.Time { return created.AddDate(0, 0, 60) })
	if _, err := store.Create(t.Context(), input("u1", "recent")); err != nil {
		t.Fatal(err)
	}

	now := created.Add(model.RetentionPeriod + time.Minute)
	s := NewExpirySweeper(store, zap.NewNop()).WithClock(func() time.Time { return now })
	if got := s.Sweep(t.Context()); got != 1 {
		t.Fatalf("Sweep = %d, want 1", got)
	}

	items, _, _ := store.Find(t.Context(), "u1", model.Filter{}, model.Page{})
	if len(items) != 1 || items[0].Title != "recent" {
		t.Errorf("unexpected survivors: %+v", items)
	}
}

func TestExpirySweeperStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	s := NewExpirySweeper(&fakeExpirer{}, zap.NewNop()).WithInterval(time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
