package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const subscriptionCols = `id, url, event_types, active, headers, secret, created_at, updated_at`

const queueItemCols = `id, event_type, payload, status, attempts, max_attempts, next_retry_at,
	last_error, delivered_at, created_at, updated_at`

const deliveryLogCols = `id, queue_item_id, subscription_id, url, status_code, response_preview, error, attempted_at`

type subscriptionRepoPG struct{ pool *pgxpool.Pool }

func NewSubscriptionRepoPG(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepoPG{pool: pool}
}

func (r *subscriptionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *subscriptionRepoPG) scanRow(row pgx.Row) (*Subscription, error) {
	var s Subscription
	var headers []byte
	err := row.Scan(&s.ID, &s.URL, &s.EventTypes, &s.Active, &headers, &s.Secret, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &s.Headers); err != nil {
			return nil, fmt.Errorf("decode subscription headers: %w", err)
		}
	}
	return &s, nil
}

func (r *subscriptionRepoPG) Create(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	headers, err := json.Marshal(sub.Headers)
	if err != nil {
		return fmt.Errorf("encode subscription headers: %w", err)
	}
	query := `
		INSERT INTO webhook_subscriptions (id, url, event_types, active, headers, secret)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, query,
		sub.ID, sub.URL, sub.EventTypes, sub.Active, headers, sub.Secret,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
}

func (r *subscriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	query := `SELECT ` + subscriptionCols + ` FROM webhook_subscriptions WHERE id = $1`
	sub, err := r.scanRow(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("webhook subscription %s not found", id)
	}
	return sub, err
}

func (r *subscriptionRepoPG) List(ctx context.Context, limit, offset int) ([]*Subscription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM webhook_subscriptions`).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + subscriptionCols + ` FROM webhook_subscriptions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.conn(ctx).Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	return subs, total, rows.Err()
}

func (r *subscriptionRepoPG) ListActive(ctx context.Context) ([]*Subscription, error) {
	query := `SELECT ` + subscriptionCols + ` FROM webhook_subscriptions WHERE active ORDER BY created_at`
	rows, err := r.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *subscriptionRepoPG) Update(ctx context.Context, sub *Subscription) error {
	headers, err := json.Marshal(sub.Headers)
	if err != nil {
		return fmt.Errorf("encode subscription headers: %w", err)
	}
	query := `
		UPDATE webhook_subscriptions
		SET url = $2, event_types = $3, active = $4, headers = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err = r.conn(ctx).QueryRow(ctx, query,
		sub.ID, sub.URL, sub.EventTypes, sub.Active, headers,
	).Scan(&sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("webhook subscription %s not found", sub.ID)
	}
	return err
}

func (r *subscriptionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook subscription %s not found", id)
	}
	return nil
}

type queueRepoPG struct{ pool *pgxpool.Pool }

func NewQueueRepoPG(pool *pgxpool.Pool) QueueRepository {
	return &queueRepoPG{pool: pool}
}

func (r *queueRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *queueRepoPG) scanRow(row pgx.Row) (*QueueItem, error) {
	var item QueueItem
	err := row.Scan(&item.ID, &item.EventType, &item.Payload, &item.Status,
		&item.Attempts, &item.MaxAttempts, &item.NextRetryAt, &item.LastError,
		&item.DeliveredAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueRepoPG) Enqueue(ctx context.Context, item *QueueItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	if item.MaxAttempts == 0 {
		item.MaxAttempts = DefaultMaxAttempts
	}
	query := `
		INSERT INTO webhook_queue_items (id, event_type, payload, status, attempts, max_attempts, next_retry_at, last_error, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, query,
		item.ID, item.EventType, item.Payload, item.Status, item.Attempts,
		item.MaxAttempts, item.NextRetryAt, item.LastError, item.DeliveredAt,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

func (r *queueRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	query := `SELECT ` + queueItemCols + ` FROM webhook_queue_items WHERE id = $1`
	item, err := r.scanRow(r.conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("webhook queue item %s not found", id)
	}
	return item, err
}

func (r *queueRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*QueueItem, int, error) {
	where := ""
	countQuery := `SELECT COUNT(*) FROM webhook_queue_items`
	args := []any{limit, offset}
	countArgs := []any{}
	if status != "" {
		where = ` WHERE status = $3`
		countQuery += ` WHERE status = $1`
		args = append(args, status)
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + queueItemCols + ` FROM webhook_queue_items` + where +
		` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		item, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *queueRepoPG) ListDue(ctx context.Context, now time.Time, limit int) ([]*QueueItem, error) {
	query := `SELECT ` + queueItemCols + ` FROM webhook_queue_items
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY next_retry_at
		LIMIT $3`
	rows, err := r.conn(ctx).Query(ctx, query, StatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		item, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *queueRepoPG) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE webhook_queue_items
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, StatusInFlight, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queueRepoPG) Update(ctx context.Context, item *QueueItem) error {
	query := `
		UPDATE webhook_queue_items
		SET status = $2, attempts = $3, max_attempts = $4, next_retry_at = $5,
		    last_error = $6, delivered_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.conn(ctx).QueryRow(ctx, query,
		item.ID, item.Status, item.Attempts, item.MaxAttempts,
		item.NextRetryAt, item.LastError, item.DeliveredAt,
	).Scan(&item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("webhook queue item %s not found", item.ID)
	}
	return err
}

func (r *queueRepoPG) RecordDelivery(ctx context.Context, log *DeliveryLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	query := `
		INSERT INTO webhook_delivery_logs (id, queue_item_id, subscription_id, url, status_code, response_preview, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.conn(ctx).Exec(ctx, query,
		log.ID, log.QueueItemID, log.SubscriptionID, log.URL,
		log.StatusCode, log.ResponsePreview, log.Error, log.AttemptedAt)
	return err
}

func (r *queueRepoPG) ListDeliveries(ctx context.Context, itemID uuid.UUID) ([]*DeliveryLog, error) {
	query := `SELECT ` + deliveryLogCols + ` FROM webhook_delivery_logs
		WHERE queue_item_id = $1 ORDER BY attempted_at`
	rows, err := r.conn(ctx).Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*DeliveryLog
	for rows.Next() {
		var l DeliveryLog
		err := rows.Scan(&l.ID, &l.QueueItemID, &l.SubscriptionID, &l.URL,
			&l.StatusCode, &l.ResponsePreview, &l.Error, &l.AttemptedAt)
		if err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
