package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Company is a billing company inside a tenant schema. Each company holds its
// own payment gateway account; customers and charges created under one
// company's credentials are never visible to another.
type Company struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	CNPJ          string    `db:"cnpj" json:"cnpj"`
	GatewayAPIKey string    `db:"gateway_api_key" json:"-"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
