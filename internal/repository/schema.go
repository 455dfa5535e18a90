package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Keep in sync with the two access patterns of the service: unread feeds
// (owner, is_read, created_at) and full feeds (owner, created_at). The
// created_at index serves the expiry sweep.
const notificationSchema = `
CREATE TABLE IF NOT EXISTS notifications (
    id UUID PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL CHECK (title <> ''),
    message TEXT NOT NULL CHECK (message <> ''),
    category TEXT NOT NULL DEFAULT 'info'
        CHECK (category IN ('info','success','warning','error','task','deadline','case','message','system')),
    link TEXT,
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    priority TEXT NOT NULL DEFAULT 'medium'
        CHECK (priority IN ('low','medium','high','urgent')),
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_owner_read_created
    ON notifications (owner_id, is_read, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_notifications_owner_created
    ON notifications (owner_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_notifications_created
    ON notifications (created_at);
`

// EnsureSchema creates the notifications table and its indexes.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, notificationSchema); err != nil {
		return fmt.Errorf("failed to apply notification schema: %w", err)
	}
	return nil
}
