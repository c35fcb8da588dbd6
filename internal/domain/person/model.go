package person

import (
	"time"

	"github.com/google/uuid"
)

// Person is a patient or a financially responsible party. The tax id (CPF) is
// what the payment gateway keys customers on, so it is stored unformatted.
type Person struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	TaxID         string    `db:"tax_id" json:"tax_id"`
	Email         *string   `db:"email" json:"email,omitempty"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	PostalCode    *string   `db:"postal_code" json:"postal_code,omitempty"`
	AddressNumber *string   `db:"address_number" json:"address_number,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
