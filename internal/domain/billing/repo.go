package billing

import (
	"context"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByExternalPaymentID(ctx context.Context, paymentID string) (*Invoice, error)
	List(ctx context.Context, limit, offset int) ([]*Invoice, int, error)
	UpdateStatus(ctx context.Context, paymentID, status string) error
}

// ChargeLockRepository guards against two concurrent charge runs over the
// same consultation set. Locks live in the database, not in process memory,
// because independent server instances may bill concurrently.
type ChargeLockRepository interface {
	// Acquire takes the lock for key and reports whether it was obtained.
	// A lock older than the staleness window is silently taken over, so a
	// crashed run cannot block a consultation set forever.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
