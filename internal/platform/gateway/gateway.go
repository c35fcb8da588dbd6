// Package gateway is a thin typed client for the external payment gateway's
// HTTPS JSON API. It carries no business logic: every operation takes the
// tenant's credentials explicitly, performs one HTTP call, and returns either
// a typed success value or a *Error, in both cases preserving the raw gateway
// payload for audit.
package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Credentials identifies one tenant's account at the gateway. There is no
// package-level credential state: every call is tagged with the tenant it
// acts for.
type Credentials struct {
	APIKey string
}

// Error is a non-2xx gateway response. Messages holds the human-readable
// error descriptions extracted from the body; Raw is the body as received.
type Error struct {
	StatusCode int
	Messages   []string
	Raw        json.RawMessage
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, strings.Join(e.Messages, "; "))
}

// Customer is the gateway's customer object.
type Customer struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	CPFCNPJ       string          `json:"cpfCnpj"`
	Email         string          `json:"email,omitempty"`
	MobilePhone   string          `json:"mobilePhone,omitempty"`
	PostalCode    string          `json:"postalCode,omitempty"`
	AddressNumber string          `json:"addressNumber,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// CustomerPage is the paginated result of a customer search.
type CustomerPage struct {
	Data       []Customer      `json:"data"`
	TotalCount int             `json:"totalCount"`
	Raw        json.RawMessage `json:"-"`
}

// CreateCustomerRequest carries the fields sent when creating a customer.
type CreateCustomerRequest struct {
	Name          string `json:"name"`
	CPFCNPJ       string `json:"cpfCnpj"`
	Email         string `json:"email,omitempty"`
	MobilePhone   string `json:"mobilePhone,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	AddressNumber string `json:"addressNumber,omitempty"`
}

// Payment is the gateway's charge object.
type Payment struct {
	ID                string          `json:"id"`
	CustomerID        string          `json:"customer"`
	Status            string          `json:"status"`
	BillingType       string          `json:"billingType"`
	Value             float64         `json:"value"`
	DueDate           string          `json:"dueDate"`
	Description       string          `json:"description,omitempty"`
	ExternalReference string          `json:"externalReference,omitempty"`
	InvoiceURL        string          `json:"invoiceUrl,omitempty"`
	Raw               json.RawMessage `json:"-"`
}

// BillingTypePix is the only billing type the clinics currently use; the
// request type accepts any value the gateway supports.
const BillingTypePix = "PIX"

// CreatePaymentRequest carries the fields sent when creating a charge.
type CreatePaymentRequest struct {
	CustomerID        string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	Description       string  `json:"description,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

// UpdatePaymentRequest carries the mutable fields of an existing charge.
// Nil fields are omitted and left unchanged at the gateway.
type UpdatePaymentRequest struct {
	BillingType *string  `json:"billingType,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	DueDate     *string  `json:"dueDate,omitempty"`
	Description *string  `json:"description,omitempty"`
}

// Invoice is the gateway's fiscal invoice object, scheduled against a charge.
type Invoice struct {
	ID                 string          `json:"id"`
	PaymentID          string          `json:"payment"`
	Status             string          `json:"status"`
	ServiceDescription string          `json:"serviceDescription,omitempty"`
	Value              float64         `json:"value"`
	EffectiveDate      string          `json:"effectiveDate,omitempty"`
	Raw                json.RawMessage `json:"-"`
}

// ScheduleInvoiceRequest carries the fields sent when scheduling a fiscal
// invoice for a charge.
type ScheduleInvoiceRequest struct {
	PaymentID          string  `json:"payment"`
	ServiceDescription string  `json:"serviceDescription"`
	Value              float64 `json:"value"`
	EffectiveDate      string  `json:"effectiveDate,omitempty"`
}

// ConfirmCashReceiptRequest marks a charge as settled outside the gateway
// (cash over the counter).
type ConfirmCashReceiptRequest struct {
	PaymentDate   string  `json:"paymentDate"`
	Value         float64 `json:"value"`
	NotifyCustomer bool   `json:"notifyCustomer"`
}
