package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"casedesk/internal/model"
	"casedesk/pkg/metrics"
	"casedesk/pkg/otel"
	"casedesk/pkg/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const notificationColumns = `id::text, owner_id, title, message, category, COALESCE(link, ''),
       is_read, priority, metadata, created_at, updated_at`

var insertColumns = []string{
	"id", "owner_id", "title", "message", "category", "link",
	"is_read", "priority", "metadata", "created_at", "updated_at",
}

// PostgresStore implements Store on a pgx pool. Expiry is handled by the
// ExpirySweeper through DeleteCreatedBefore.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (r *PostgresStore) Create(ctx context.Context, in model.NotificationInput) (*model.Notification, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	n := model.NewNotification(in, uuid.NewString(), timestamp())
	r.logger.Debug("Inserting notification",
		zap.String("owner", n.Owner),
		zap.String("category", string(n.Category)),
	)

	values, err := insertValues(n)
	if err != nil {
		return nil, err
	}

	query := `
        INSERT INTO notifications (id, owner_id, title, message, category, link,
                                   is_read, priority, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	err = r.trace(ctx, "insert", query, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, values...)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to insert notification",
			zap.String("owner", n.Owner),
			zap.Error(err),
		)
		return nil, r.wrap("insert notification", err)
	}

	r.logger.Info("Notification inserted successfully",
		zap.String("id", n.ID),
		zap.String("owner", n.Owner),
	)
	return n, nil
}

func (r *PostgresStore) CreateMany(ctx context.Context, ins []model.NotificationInput) ([]*model.Notification, error) {
	valid, err := model.ValidateBatch(ins)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return []*model.Notification{}, nil
	}

	now := timestamp()
	out := make([]*model.Notification, 0, len(valid))
	rows := make([][]any, 0, len(valid))
	for _, in := range valid {
		n := model.NewNotification(in, uuid.NewString(), now)
		values, err := insertValues(n)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
		rows = append(rows, values)
	}

	r.logger.Debug("Bulk inserting notifications", zap.Int("count", len(rows)))

	err = r.trace(ctx, "copy", "COPY notifications", func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"notifications"}, insertColumns, pgx.CopyFromRows(rows)); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		r.logger.Error("Failed to bulk insert notifications",
			zap.Int("count", len(rows)),
			zap.Error(err),
		)
		return nil, r.wrap("bulk insert notifications", err)
	}

	r.logger.Info("Notifications bulk inserted successfully", zap.Int("count", len(out)))
	return out, nil
}

func (r *PostgresStore) Find(ctx context.Context, owner string, filter model.Filter, page model.Page) ([]*model.Notification, int64, error) {
	page = page.Normalize()
	where, args := buildWhere(owner, filter)

	total, err := r.count(ctx, where, args)
	if err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
        SELECT %s
        FROM notifications
        WHERE %s
        ORDER BY created_at DESC, id DESC
        LIMIT $%d OFFSET $%d
    `, notificationColumns, where, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset)

	items := []*model.Notification{}
	err = r.trace(ctx, "select", query, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				return err
			}
			items = append(items, n)
		}
		return rows.Err()
	})
	if err != nil {
		r.logger.Error("Failed to query notifications",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return nil, 0, r.wrap("find notifications", err)
	}

	return items, total, nil
}

func (r *PostgresStore) Count(ctx context.Context, owner string, filter model.Filter) (int64, error) {
	where, args := buildWhere(owner, filter)
	return r.count(ctx, where, args)
}

func (r *PostgresStore) count(ctx context.Context, where string, args []any) (int64, error) {
	query := "SELECT COUNT(*) FROM notifications WHERE " + where

	var total int64
	err := r.trace(ctx, "count", query, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, args...).Scan(&total)
	})
	if err != nil {
		return 0, r.wrap("count notifications", err)
	}
	return total, nil
}

func (r *PostgresStore) UpdateOneByOwner(ctx context.Context, id, owner string, patch model.Patch) (*model.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	set, args := buildSet(patch, []any{id, owner})
	query := fmt.Sprintf(`
        UPDATE notifications
        SET %s
        WHERE id = $1 AND owner_id = $2
        RETURNING %s
    `, set, notificationColumns)

	var n *model.Notification
	err := r.trace(ctx, "update", query, func(ctx context.Context) error {
		var err error
		n, err = scanNotification(r.db.QueryRow(ctx, query, args...))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update notification",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, r.wrap("update notification", err)
	}
	return n, nil
}

func (r *PostgresStore) UpdateManyByOwner(ctx context.Context, owner string, filter model.Filter, patch model.Patch) (int64, error) {
	where, args := buildWhere(owner, filter)
	set, args := buildSet(patch, args)
	query := fmt.Sprintf("UPDATE notifications SET %s WHERE %s", set, where)

	var matched int64
	err := r.trace(ctx, "update", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, args...)
		matched = tag.RowsAffected()
		return err
	})
	if err != nil {
		r.logger.Error("Failed to update notifications",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return 0, r.wrap("update notifications", err)
	}

	r.logger.Info("Notifications updated",
		zap.String("owner", owner),
		zap.Int64("rows_affected", matched),
	)
	return matched, nil
}

func (r *PostgresStore) DeleteOneByOwner(ctx context.Context, id, owner string) (*model.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}

	query := fmt.Sprintf(`
        DELETE FROM notifications
        WHERE id = $1 AND owner_id = $2
        RETURNING %s
    `, notificationColumns)

	var n *model.Notification
	err := r.trace(ctx, "delete", query, func(ctx context.Context) error {
		var err error
		n, err = scanNotification(r.db.QueryRow(ctx, query, id, owner))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to delete notification",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, r.wrap("delete notification", err)
	}
	return n, nil
}

func (r *PostgresStore) DeleteManyByOwner(ctx context.Context, owner string, filter model.Filter) (int64, error) {
	where, args := buildWhere(owner, filter)
	query := "DELETE FROM notifications WHERE " + where

	var deleted int64
	err := r.trace(ctx, "delete", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, args...)
		deleted = tag.RowsAffected()
		return err
	})
	if err != nil {
		r.logger.Error("Failed to delete notifications",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return 0, r.wrap("delete notifications", err)
	}

	r.logger.Info("Notifications deleted",
		zap.String("owner", owner),
		zap.Int64("rows_affected", deleted),
	)
	return deleted, nil
}

func (r *PostgresStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := "DELETE FROM notifications WHERE created_at < $1"

	var deleted int64
	err := r.trace(ctx, "expire", query, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, cutoff)
		deleted = tag.RowsAffected()
		return err
	})
	if err != nil {
		return 0, r.wrap("expire notifications", err)
	}
	return deleted, nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return r.wrap("ping", err)
	}
	return nil
}

func (r *PostgresStore) trace(ctx context.Context, operation, query string, fn func(context.Context) error) error {
	start := time.Now()
	err := otel.TraceDB(ctx, "postgresql", operation, query, fn)
	metrics.RecordDBQueryDuration(operation, "notifications", time.Since(start))
	return err
}

func (r *PostgresStore) wrap(op string, err error) error {
	if util.IsStoreUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// buildWhere always scopes by owner as $1.
func buildWhere(owner string, filter model.Filter) (string, []any) {
	clauses := []string{"owner_id = $1"}
	args := []any{owner}

	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		clauses = append(clauses, fmt.Sprintf("is_read = $%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

// buildSet appends the patch arguments to args. updated_at only moves when
// the patch changes the stored value.
func buildSet(patch model.Patch, args []any) (string, []any) {
	args = append(args, patch.IsRead, timestamp())
	isRead := fmt.Sprintf("$%d::boolean", len(args)-1)
	now := fmt.Sprintf("$%d", len(args))

	set := fmt.Sprintf(`is_read = COALESCE(%[1]s, is_read),
            updated_at = CASE WHEN %[1]s IS NOT NULL AND is_read IS DISTINCT FROM %[1]s
                              THEN %[2]s::timestamptz ELSE updated_at END`, isRead, now)
	return set, args
}

// insertValues lays out n in insertColumns order. CopyFrom encodes in binary
// format, so the id must be a uuid.UUID rather than its string form.
func insertValues(n *model.Notification) ([]any, error) {
	id, err := uuid.Parse(n.ID)
	if err != nil {
		return nil, fmt.Errorf("notification id %q: %w", n.ID, err)
	}
	meta, err := encodeMetadata(n.Metadata)
	if err != nil {
		return nil, err
	}
	var link *string
	if n.Link != "" {
		link = &n.Link
	}
	return []any{
		id, n.Owner, n.Title, n.Message, string(n.Category), link,
		n.IsRead, string(n.Priority), meta, n.CreatedAt, n.UpdatedAt,
	}, nil
}

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var (
		n        model.Notification
		category string
		priority string
		meta     []byte
	)
	if err := row.Scan(
		&n.ID,
		&n.Owner,
		&n.Title,
		&n.Message,
		&category,
		&n.Link,
		&n.IsRead,
		&priority,
		&meta,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.Category = model.Category(category)
	n.Priority = model.Priority(priority)

	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
		}
	}
	return &n, nil
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, &model.ValidationError{Index: -1, Field: "metadata", Reason: err.Error()}
	}
	return data, nil
}

// timestamp truncates to the microsecond precision of timestamptz so the
// returned record equals what a later read yields.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
