package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Invoice statuses mirror the gateway's charge lifecycle.
const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice is the local ledger mirror of an external charge. The external
// charge is the source of truth: ExternalPaymentID is known before the row is
// written, and a charge may exist at the gateway with no Invoice row (logged,
// reconciled later), but an Invoice row must never reference a charge that
// does not exist.
type Invoice struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	ExternalPaymentID  string          `db:"external_payment_id" json:"external_payment_id"`
	TenantBillingID    uuid.UUID       `db:"tenant_billing_id" json:"tenant_billing_id"`
	ResponsiblePartyID uuid.UUID       `db:"responsible_party_id" json:"responsible_party_id"`
	PatientID          uuid.UUID       `db:"patient_id" json:"patient_id"`
	TotalValue         float64         `db:"total_value" json:"total_value"`
	Description        string          `db:"description" json:"description"`
	DueDate            time.Time       `db:"due_date" json:"due_date"`
	Status             string          `db:"status" json:"status"`
	ConsultationIDs    []uuid.UUID     `db:"consultation_ids" json:"consultation_ids"`
	GatewayRawPayload  json.RawMessage `db:"gateway_raw_payload" json:"gateway_raw_payload,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}
