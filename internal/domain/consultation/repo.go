package consultation

import (
	"context"

	"github.com/google/uuid"
)

type ConsultationRepository interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Consultation, error)
	// SetPaymentReference back-links the external payment id onto every
	// consultation in ids. Implementations must report an error when fewer
	// than len(ids) rows were updated.
	SetPaymentReference(ctx context.Context, ids []uuid.UUID, paymentID string) error
	ListUnbilled(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
}
