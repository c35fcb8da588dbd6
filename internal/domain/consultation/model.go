package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Consultation is one rendered clinical service. Professional identity is
// denormalized onto the row so billing descriptions can be generated without
// joining against staff records as they looked at charge time.
type Consultation struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Date                time.Time `db:"date" json:"date"`
	ServiceName         string    `db:"service_name" json:"service_name"`
	ServiceValue        float64   `db:"service_value" json:"service_value"`
	ProfessionalID      uuid.UUID `db:"professional_id" json:"professional_id"`
	ProfessionalName    string    `db:"professional_name" json:"professional_name"`
	ProfessionalTitle   string    `db:"professional_title" json:"professional_title"`
	ProfessionalTaxID   string    `db:"professional_tax_id" json:"professional_tax_id"`
	ProfessionalLicense *string   `db:"professional_license" json:"professional_license,omitempty"`
	PatientID           uuid.UUID `db:"patient_id" json:"patient_id"`
	TenantBillingID     uuid.UUID `db:"tenant_billing_id" json:"tenant_billing_id"`
	// PaymentReference mirrors the external payment id once the consultation
	// has been charged. Set exactly once, by the billing orchestrator.
	PaymentReference *string   `db:"payment_reference" json:"payment_reference,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Charged reports whether the consultation has already been billed.
func (c *Consultation) Charged() bool {
	return c.PaymentReference != nil && *c.PaymentReference != ""
}
