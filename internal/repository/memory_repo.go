package repository

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"casedesk/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryStore keeps notifications in process memory. Used by tests and by
// the "memory" store driver for local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]*model.Notification
	now    func() time.Time
	logger *zap.Logger
}

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		items:  make(map[string]*model.Notification),
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used for createdAt/updatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(ctx context.Context, in model.NotificationInput) (*model.Notification, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := model.NewNotification(in, uuid.NewString(), s.now())
	s.items[n.ID] = n
	s.logger.Debug("Notification stored in memory",
		zap.String("id", n.ID),
		zap.String("owner", n.Owner),
	)
	return clone(n), nil
}

func (s *MemoryStore) CreateMany(ctx context.Context, ins []model.NotificationInput) ([]*model.Notification, error) {
	valid, err := model.ValidateBatch(ins)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]*model.Notification, 0, len(valid))
	for _, in := range valid {
		n := model.NewNotification(in, uuid.NewString(), now)
		s.items[n.ID] = n
		out = append(out, clone(n))
	}
	return out, nil
}

func (s *MemoryStore) Find(ctx context.Context, owner string, filter model.Filter, page model.Page) ([]*model.Notification, int64, error) {
	page = page.Normalize()

	s.mu.RLock()
	matched := s.matching(owner, filter)
	s.mu.RUnlock()

	sortNewestFirst(matched)

	total := int64(len(matched))
	if page.Offset >= len(matched) {
		return []*model.Notification{}, total, nil
	}
	end := min(page.Offset+page.Limit, len(matched))
	return matched[page.Offset:end], total, nil
}

func (s *MemoryStore) Count(ctx context.Context, owner string, filter model.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matching(owner, filter))), nil
}

func (s *MemoryStore) UpdateOneByOwner(ctx context.Context, id, owner string, patch model.Patch) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok || n.Owner != owner {
		return nil, model.ErrNotFound
	}
	patch.Apply(n, s.now())
	return clone(n), nil
}

func (s *MemoryStore) UpdateManyByOwner(ctx context.Context, owner string, filter model.Filter, patch model.Patch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var matched int64
	for _, n := range s.items {
		if n.Owner != owner || !filter.Matches(n) {
			continue
		}
		matched++
		patch.Apply(n, now)
	}
	return matched, nil
}

func (s *MemoryStore) DeleteOneByOwner(ctx context.Context, id, owner string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.items[id]
	if !ok || n.Owner != owner {
		return nil, model.ErrNotFound
	}
	delete(s.items, id)
	return n, nil
}

func (s *MemoryStore) DeleteManyByOwner(ctx context.Context, owner string, filter model.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.items {
		if n.Owner == owner && filter.Matches(n) {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.items {
		if n.CreatedAt.Before(cutoff) {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// matching must be called with the lock held.
func (s *MemoryStore) matching(owner string, filter model.Filter) []*model.Notification {
	out := []*model.Notification{}
	for _, n := range s.items {
		if n.Owner == owner && filter.Matches(n) {
			out = append(out, clone(n))
		}
	}
	return out
}

func sortNewestFirst(items []*model.Notification) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}

func clone(n *model.Notification) *model.Notification {
	c := *n
	if n.Metadata != nil {
		c.Metadata = maps.Clone(n.Metadata)
	}
	return &c
}
