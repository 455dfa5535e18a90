package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	mqcontracts "casedesk/contracts/mq"
	"casedesk/internal/model"
	"casedesk/pkg/mq"

	"go.uber.org/zap"
)

type fakeCreator struct {
	mu      sync.Mutex
	created []model.NotificationInput
	batches [][]model.NotificationInput
	err     error
}

func (f *fakeCreator) CreateNotification(_ context.Context, in model.NotificationInput) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, err := in.Normalize(); err != nil {
		return nil, err
	}
	f.created = append(f.created, in)
	return &model.Notification{ID: fmt.Sprintf("id-%d", len(f.created)), Owner: in.Owner}, nil
}

func (f *fakeCreator) CreateBulkNotifications(_ context.Context, ins []model.NotificationInput) ([]*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, err := model.ValidateBatch(ins); err != nil {
		return nil, err
	}
	f.batches = append(f.batches, ins)
	return make([]*model.Notification, len(ins)), nil
}

type fakeDeduper struct {
	seen     map[string]bool
	released int
}

func (d *fakeDeduper) AcquireOnce(_ context.Context, handler, eventID string) bool {
	key := handler + ":" + eventID
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *fakeDeduper) Release(_ context.Context, handler, eventID string) {
	delete(d.seen, handler+":"+eventID)
	d.released++
}

type fakeCounter struct {
	counts map[string]int64
}

func (c *fakeCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

func newTestHandler(creator *fakeCreator, maxRetries int64) (*NotificationCreatedHandler, *fakeDeduper, *fakeCounter) {
	d := &fakeDeduper{seen: map[string]bool{}}
	c := &fakeCounter{counts: map[string]int64{}}
	return NewNotificationCreatedHandler(creator, d, c, maxRetries, zap.NewNop()), d, c
}

func message(t *testing.T, payload any) mq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return mq.Message{RoutingKey: mqcontracts.RoutingKeyNotificationCreated, Body: body}
}

func TestHandleCreated(t *testing.T) {
	creator := &fakeCreator{}
	h, _, _ := newTestHandler(creator, 3)

	msg := message(t, mqcontracts.NotificationCreatedPayload{
		EventID: "evt-1", Owner: "u1", Title: "Task due", Message: "Tomorrow", Type: "task",
	})
	if err := h.HandleCreated(t.Context(), msg); err != nil {
		t.Fatalf("HandleCreated: %v", err)
	}
	if len(creator.created) != 1 || creator.created[0].Type != "task" {
		t.Fatalf("created = %+v", creator.created)
	}

	// Redelivery of the same event is acknowledged without a second insert.
	if err := h.HandleCreated(t.Context(), msg); err != nil {
		t.Fatalf("duplicate HandleCreated: %v", err)
	}
	if len(creator.created) != 1 {
		t.Errorf("duplicate event created %d notifications", len(creator.created))
	}
}

func TestHandleCreatedDeadLettersBadInput(t *testing.T) {
	h, _, _ := newTestHandler(&fakeCreator{}, 3)

	tests := []struct {
		name string
		msg  mq.Message
	}{
		{"malformed json", mq.Message{Body: []byte("{oops")}},
		{"missing title", message(t, mqcontracts.NotificationCreatedPayload{EventID: "evt-2", Owner: "u1", Message: "m"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.HandleCreated(t.Context(), tt.msg)
			if !errors.Is(err, mq.ErrDeadLetter) {
				t.Errorf("got %v, want dead letter", err)
			}
		})
	}
}

func TestHandleCreatedRetriesUntilBudgetExhausted(t *testing.T) {
	creator := &fakeCreator{err: fmt.Errorf("insert: %w", model.ErrStoreUnavailable)}
	h, d, _ := newTestHandler(creator, 2)
	msg := message(t, mqcontracts.NotificationCreatedPayload{EventID: "evt-3", Owner: "u1", Title: "t", Message: "m"})

	for attempt := 1; attempt <= 2; attempt++ {
		err := h.HandleCreated(t.Context(), msg)
		if err == nil || errors.Is(err, mq.ErrDeadLetter) {
			t.Fatalf("attempt %d: got %v, want retryable error", attempt, err)
		}
	}
	if err := h.HandleCreated(t.Context(), msg); !errors.Is(err, mq.ErrDeadLetter) {
		t.Fatalf("third attempt: got %v, want dead letter", err)
	}
	if d.released != 3 {
		t.Errorf("dedup key released %d times, want 3", d.released)
	}
}

func TestHandleBulkCreated(t *testing.T) {
	creator := &fakeCreator{}
	h, _, _ := newTestHandler(creator, 3)

	msg := message(t, mqcontracts.NotificationBulkCreatedPayload{
		EventID: "bulk-1",
		Notifications: []mqcontracts.NotificationCreatedPayload{
			{Owner: "a1", Title: "Case assigned", Message: "m", Type: "case"},
			{Owner: "a2", Title: "Case assigned", Message: "m", Type: "case"},
		},
	})
	if err := h.HandleBulkCreated(t.Context(), msg); err != nil {
		t.Fatalf("HandleBulkCreated: %v", err)
	}
	if len(creator.batches) != 1 || len(creator.batches[0]) != 2 {
		t.Errorf("batches = %+v", creator.batches)
	}
}

func TestEventKeyFallbacks(t *testing.T) {
	body := []byte(`{"owner":"u1"}`)
	if got := eventKey("evt", mq.Message{ID: "msg", Body: body}); got != "evt" {
		t.Errorf("got %q, want evt", got)
	}
	if got := eventKey("", mq.Message{ID: "msg", Body: body}); got != "msg" {
		t.Errorf("got %q, want msg", got)
	}
	a := eventKey("", mq.Message{Body: body})
	b := eventKey("", mq.Message{Body: body})
	if a == "" || a != b {
		t.Errorf("digest key not stable: %q %q", a, b)
	}
}

func TestNilRedisHelpers(t *testing.T) {
	creator := &fakeCreator{err: fmt.Errorf("insert: %w", model.ErrStoreUnavailable)}
	h := NewNotificationCreatedHandler(creator, nil, nil, 0, zap.NewNop())
	msg := message(t, mqcontracts.NotificationCreatedPayload{Owner: "u1", Title: "t", Message: "m"})

	err := h.HandleCreated(t.Context(), msg)
	if err == nil || errors.Is(err, mq.ErrDeadLetter) {
		t.Errorf("got %v, want plain retryable error", err)
	}
}
