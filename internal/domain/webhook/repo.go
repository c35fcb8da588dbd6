package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionRepository persists webhook subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	List(ctx context.Context, limit, offset int) ([]*Subscription, int, error)
	ListActive(ctx context.Context) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// QueueRepository persists queue items and their delivery logs.
type QueueRepository interface {
	Enqueue(ctx context.Context, item *QueueItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*QueueItem, error)
	List(ctx context.Context, status string, limit, offset int) ([]*QueueItem, int, error)
	// ListDue returns pending items whose next_retry_at has passed.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*QueueItem, error)
	// Claim flips a pending item to in_flight. Returns false when the item
	// was already claimed by another worker.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, item *QueueItem) error
	RecordDelivery(ctx context.Context, log *DeliveryLog) error
	ListDeliveries(ctx context.Context, itemID uuid.UUID) ([]*DeliveryLog, error)
}
