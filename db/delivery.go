package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/google/uuid"
)

// Delivery Queue queries
const (
	sqlInsertDeliveryQueue = `INSERT INTO delivery_queue(id, actor_uri, inbox_uri, domain, activity_json, attempts, next_retry_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, actor_uri, inbox_uri, domain, activity_json, attempts, next_retry_at, created_at
		FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery        = `DELETE FROM delivery_queue WHERE id = ?`
	sqlCountDeliveries       = `SELECT COUNT(*) FROM delivery_queue`
)

func (db *DB) EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error {
	now := time.Now().UTC()
	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.NextRetryAt.IsZero() {
		item.NextRetryAt = now
	}
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertDeliveryQueue,
			item.Id,
			item.ActorURI,
			item.InboxURI,
			item.Domain,
			item.ActivityJSON,
			item.Attempts,
			item.NextRetryAt.UTC(),
			item.CreatedAt.UTC(),
		)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryQueueItem, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectPendingDeliveries, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		if err := rows.Scan(&item.Id, &item.ActorURI, &item.InboxURI, &item.Domain, &item.ActivityJSON,
			&item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (db *DB) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlUpdateDeliveryAttempt, attempts, nextRetry.UTC(), id)
		return err
	})
}

func (db *DB) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlDeleteDelivery, id)
		return err
	})
}

func (db *DB) CountDeliveries(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, sqlCountDeliveries).Scan(&n)
	return n, err
}
