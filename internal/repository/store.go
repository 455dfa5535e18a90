package repository

import (
	"context"
	"time"

	"casedesk/internal/model"
)

// Store is the persistence contract of the notification subsystem. Every
// method scopes its work to a single owner; records of other owners are
// never returned or touched.
type Store interface {
	// Create assigns id and timestamps and persists one record.
	Create(ctx context.Context, in model.NotificationInput) (*model.Notification, error)

	// CreateMany persists all records or none of them.
	CreateMany(ctx context.Context, ins []model.NotificationInput) ([]*model.Notification, error)

	// Find returns one page ordered by createdAt descending and the total
	// number of records matching the filter.
	Find(ctx context.Context, owner string, filter model.Filter, page model.Page) ([]*model.Notification, int64, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, owner string, filter model.Filter) (int64, error)

	// UpdateOneByOwner atomically patches one record, model.ErrNotFound when
	// no record with that id belongs to owner.
	UpdateOneByOwner(ctx context.Context, id, owner string, patch model.Patch) (*model.Notification, error)

	// UpdateManyByOwner patches every matching record and returns the matched count.
	UpdateManyByOwner(ctx context.Context, owner string, filter model.Filter, patch model.Patch) (int64, error)

	// DeleteOneByOwner atomically removes and returns one record.
	DeleteOneByOwner(ctx context.Context, id, owner string) (*model.Notification, error)

	// DeleteManyByOwner removes every matching record and returns the deleted count.
	DeleteManyByOwner(ctx context.Context, owner string, filter model.Filter) (int64, error)

	Ping(ctx context.Context) error
}

// Expirer is implemented by stores without a native TTL; the ExpirySweeper
// calls it periodically.
type Expirer interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
