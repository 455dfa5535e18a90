package service

import (
	"context"
	"errors"
	"strings"

	"casedesk/internal/model"
	"casedesk/internal/repository"
	"casedesk/pkg/metrics"
	"casedesk/pkg/otel"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxPageSize caps ListQuery.Limit when Options.MaxPageSize is unset.
const DefaultMaxPageSize = 100

// UnreadCache is an optional read-through cache for unread counts. It must
// never fail a request; implementations swallow their own errors.
//
// Get reports a miss together with the owner's invalidation generation. Set
// must drop the write when Invalidate ran after that generation was read,
// otherwise a count read before a mutation outlives it.
type UnreadCache interface {
	Get(ctx context.Context, owner string) (count, gen int64, hit bool)
	Set(ctx context.Context, owner string, gen, count int64)
	Invalidate(ctx context.Context, owner string)
}

type Options struct {
	MaxPageSize int
	// Cache may be nil.
	Cache UnreadCache
}

// ListResult is one page of an owner's notifications.
type ListResult struct {
	Notifications []*model.Notification `json:"notifications"`
	Total         int64                 `json:"total"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
}

// NotificationService implements the user-facing notification operations on
// top of a Store. It holds no per-request state and is safe for concurrent use.
type NotificationService struct {
	store       repository.Store
	cache       UnreadCache
	maxPageSize int
	logger      *zap.Logger
}

func NewNotificationService(store repository.Store, logger *zap.Logger, opts Options) *NotificationService {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	return &NotificationService{
		store:       store,
		cache:       opts.Cache,
		maxPageSize: opts.MaxPageSize,
		logger:      logger,
	}
}

// ListNotifications returns one page of owner's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, owner string, q ListQuery) (res *ListResult, err error) {
	ctx, finish := s.observe(ctx, "list", owner)
	defer func() { finish(err) }()

	if err := requireOwner(owner); err != nil {
		return nil, err
	}

	q = q.normalize(s.maxPageSize)
	items, total, err := s.store.Find(ctx, owner, q.filter(), model.Page{Limit: q.Limit, Offset: q.Skip})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Notification{}
	}

	return &ListResult{
		Notifications: items,
		Total:         total,
		Page:          q.Skip/q.Limit + 1,
		Limit:         q.Limit,
	}, nil
}

// GetUnreadCount returns the number of unread notifications owned by owner.
func (s *NotificationService) GetUnreadCount(ctx context.Context, owner string) (count int64, err error) {
	ctx, finish := s.observe(ctx, "unread_count", owner)
	defer func() { finish(err) }()

	if err := requireOwner(owner); err != nil {
		return 0, err
	}

	var gen int64
	if s.cache != nil {
		cached, g, hit := s.cache.Get(ctx, owner)
		if hit {
			return cached, nil
		}
		gen = g
	}

	count, err = s.store.Count(ctx, owner, model.Filter{IsRead: model.Bool(false)})
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, owner, gen, count)
	}
	return count, nil
}

// CreateNotification stores a single notification for in.Owner.
func (s *NotificationService) CreateNotification(ctx context.Context, in model.NotificationInput) (n *model.Notification, err error) {
	ctx, finish := s.observe(ctx, "create", in.Owner)
	defer func() { finish(err) }()

	in, err = in.Normalize()
	if err != nil {
		return nil, err
	}

	n, err = s.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	metrics.IncrementNotificationCreated(string(n.Category))
	s.invalidate(ctx, n.Owner)
	return n, nil
}

// CreateBulkNotifications stores every input or none of them.
func (s *NotificationService) CreateBulkNotifications(ctx context.Context, ins []model.NotificationInput) (out []*model.Notification, err error) {
	ctx, finish := s.observe(ctx, "create_bulk", "")
	defer func() { finish(err) }()

	valid, err := model.ValidateBatch(ins)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return []*model.Notification{}, nil
	}

	out, err = s.store.CreateMany(ctx, valid)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]struct{})
	for _, n := range out {
		metrics.IncrementNotificationCreated(string(n.Category))
		owners[n.Owner] = struct{}{}
	}
	for owner := range owners {
		s.invalidate(ctx, owner)
	}

	s.logger.Info("Bulk notifications created",
		zap.Int("count", len(out)),
		zap.Int("owners", len(owners)),
	)
	return out, nil
}

// MarkAsRead marks one notification as read. Calling it on an already read
// notification succeeds and returns the record unchanged.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, owner string) (n *model.Notification, err error) {
	ctx, finish := s.observe(ctx, "mark_read", owner)
	defer func() { finish(err) }()

	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, model.ErrNotFound
	}

	n, err = s.store.UpdateOneByOwner(ctx, id, owner, model.Patch{IsRead: model.Bool(true)})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, owner)
	return n, nil
}

// MarkAllAsRead marks every unread notification of owner as read and returns
// how many were modified.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, owner string) (modified int64, err error) {
	ctx, finish := s.observe(ctx, "mark_all_read", owner)
	defer func() { finish(err) }()

	if err := requireOwner(owner); err != nil {
		return 0, err
	}

	modified, err = s.store.UpdateManyByOwner(ctx, owner,
		model.Filter{IsRead: model.Bool(false)},
		model.Patch{IsRead: model.Bool(true)},
	)
	if err != nil {
		return 0, err
	}

	s.invalidate(ctx, owner)
	return modified, nil
}

// DeleteNotification removes one notification and returns it.
func (s *NotificationService) DeleteNotification(ctx context.Context, id, owner string) (n *model.Notification, err error) {
	ctx, finish := s.observe(ctx, "delete", owner)
	defer func() { finish(err) }()

	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, model.ErrNotFound
	}

	n, err = s.store.DeleteOneByOwner(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	if !n.IsRead {
		s.invalidate(ctx, owner)
	}
	return n, nil
}

// DeleteAllRead removes every read notification of owner. Unread ones are
// left untouched.
func (s *NotificationService) DeleteAllRead(ctx context.Context, owner string) (deleted int64, err error) {
	ctx, finish := s.observe(ctx, "delete_all_read", owner)
	defer func() { finish(err) }()

	if err := requireOwner(owner); err != nil {
		return 0, err
	}

	return s.store.DeleteManyByOwner(ctx, owner, model.Filter{IsRead: model.Bool(true)})
}

// Ready reports whether the backing store is reachable.
func (s *NotificationService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *NotificationService) invalidate(ctx context.Context, owner string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, owner)
	}
}

// observe starts a span for op and returns a func that ends it and counts
// the outcome.
func (s *NotificationService) observe(ctx context.Context, op, owner string) (context.Context, func(error)) {
	owner = strings.TrimSpace(owner)
	ctx, span := otel.StartSpan(ctx, "notification."+op,
		trace.WithAttributes(attribute.String("notification.owner", owner)),
	)
	return ctx, func(err error) {
		outcome := Outcome(err)
		metrics.IncrementNotificationOp(op, outcome)
		if outcome == "error" || outcome == "unavailable" {
			s.logger.Error("Notification operation failed",
				zap.String("operation", op),
				zap.String("owner", owner),
				zap.Error(err),
			)
		}
		otel.EndSpan(span, err)
	}
}

// Outcome maps an operation error onto a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return &model.ValidationError{Index: -1, Field: "owner", Reason: "is required"}
	}
	return nil
}

// validID rejects ids no store could have issued; they are reported as not
// found like any other miss.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
