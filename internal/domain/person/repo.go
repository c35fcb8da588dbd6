package person

import (
	"context"

	"github.com/google/uuid"
)

type PersonRepository interface {
	Create(ctx context.Context, p *Person) error
	GetByID(ctx context.Context, id uuid.UUID) (*Person, error)
	GetByTaxID(ctx context.Context, taxID string) (*Person, error)
	List(ctx context.Context, limit, offset int) ([]*Person, int, error)
	Update(ctx context.Context, p *Person) error
}
