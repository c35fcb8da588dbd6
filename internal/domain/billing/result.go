package billing

import (
	"errors"
	"fmt"
)

// Fatal orchestration errors: nothing was charged and nothing was written.
var (
	ErrMissingTaxID       = errors.New("responsible party has no tax id")
	ErrCustomerResolution = errors.New("customer resolution failed")
	ErrChargeCreation     = errors.New("charge creation failed")
	ErrChargeInProgress   = errors.New("a charge for this consultation set is already in progress")
	ErrAlreadyCharged     = errors.New("consultation already carries a payment reference")
)

// ChargeOutcome is the successful result of a charge run. Warnings records
// non-fatal steps that failed (notification suppression, local ledger write);
// the charge itself succeeded and the caller must treat the outcome as
// success even when warnings are present.
type ChargeOutcome struct {
	ExternalPaymentID string   `json:"external_payment_id"`
	Invoice           *Invoice `json:"invoice,omitempty"`
	TotalValue        float64  `json:"total_value"`
	Description       string   `json:"description"`
	Warnings          []string `json:"warnings,omitempty"`
}

// PartialChargeError reports that the external charge was created but the
// consultation back-link failed: money is owed at the gateway with no local
// record pointing at it. Callers must surface this to an operator for manual
// reconciliation instead of treating it as a plain failure.
type PartialChargeError struct {
	ExternalPaymentID string
	Err               error
}

func (e *PartialChargeError) Error() string {
	return fmt.Sprintf("charge %s created but consultation linkage failed: %v", e.ExternalPaymentID, e.Err)
}

func (e *PartialChargeError) Unwrap() error { return e.Err }
