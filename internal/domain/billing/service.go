package billing

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/consultation"
	"github.com/clinicore/clinicore/internal/domain/person"
	"github.com/clinicore/clinicore/internal/domain/tenant"
	"github.com/clinicore/clinicore/internal/platform/gateway"
)

// Gateway is the seam to the payment gateway client. The orchestrator and
// resolver depend on this interface so tests can substitute a stub.
type Gateway interface {
	SearchCustomerByTaxID(ctx context.Context, creds gateway.Credentials, taxID string) (*gateway.CustomerPage, error)
	CreateCustomer(ctx context.Context, creds gateway.Credentials, req gateway.CreateCustomerRequest) (*gateway.Customer, error)
	DisableNotifications(ctx context.Context, creds gateway.Credentials, customerID string) error
	CreatePayment(ctx context.Context, creds gateway.Credentials, req gateway.CreatePaymentRequest) (*gateway.Payment, error)
	UpdatePayment(ctx context.Context, creds gateway.Credentials, paymentID string, req gateway.UpdatePaymentRequest) (*gateway.Payment, error)
	CancelPayment(ctx context.Context, creds gateway.Credentials, paymentID string) error
	ScheduleInvoice(ctx context.Context, creds gateway.Credentials, req gateway.ScheduleInvoiceRequest) (*gateway.Invoice, error)
	AuthorizeInvoice(ctx context.Context, creds gateway.Credentials, invoiceID string) (*gateway.Invoice, error)
	ConfirmCashReceipt(ctx context.Context, creds gateway.Credentials, paymentID string, req gateway.ConfirmCashReceiptRequest) (*gateway.Payment, error)
}

// EventPublisher appends domain events to the webhook delivery queue.
type EventPublisher interface {
	Enqueue(ctx context.Context, eventType string, payload interface{}) error
}

// Webhook event types raised by billing.
const (
	EventInvoiceCreated   = "invoice.created"
	EventInvoiceCancelled = "invoice.cancelled"
	EventInvoicePaid      = "invoice.paid"
)

// dueDateOffset is the fixed business rule for charge due dates.
const dueDateOffset = 48 * time.Hour

// ChargeRequest identifies what to bill and who pays.
type ChargeRequest struct {
	ConsultationIDs    []uuid.UUID `json:"consultation_ids"`
	ResponsiblePartyID uuid.UUID   `json:"responsible_party_id"`
	TenantBillingID    uuid.UUID   `json:"tenant_billing_id"`
}

type Service struct {
	companies     tenant.CompanyRepository
	persons       person.PersonRepository
	consultations consultation.ConsultationRepository
	invoices      InvoiceRepository
	locks         ChargeLockRepository
	resolver      *CustomerResolver
	gw            Gateway
	events        EventPublisher
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(
	companies tenant.CompanyRepository,
	persons person.PersonRepository,
	consultations consultation.ConsultationRepository,
	invoices InvoiceRepository,
	locks ChargeLockRepository,
	gw Gateway,
	events EventPublisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		companies:     companies,
		persons:       persons,
		consultations: consultations,
		invoices:      invoices,
		locks:         locks,
		resolver:      NewCustomerResolver(gw, logger),
		gw:            gw,
		events:        events,
		logger:        logger.With().Str("component", "billing").Logger(),
		now:           time.Now,
	}
}

// ChargeConsultations turns a set of billable consultations into one external
// charge plus a local ledger mirror. Failure handling is per step: customer
// resolution and charge creation abort with nothing written; a failed
// consultation back-link after a successful charge returns
// *PartialChargeError; a failed notification suppression or ledger write is
// reported as a warning on an otherwise successful outcome.
func (s *Service) ChargeConsultations(ctx context.Context, req ChargeRequest) (*ChargeOutcome, error) {
	if len(req.ConsultationIDs) == 0 {
		return nil, fmt.Errorf("no consultations to charge")
	}

	lockKey := chargeLockKey(req.ConsultationIDs)
	acquired, err := s.locks.Acquire(ctx, lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire charge lock: %w", err)
	}
	if !acquired {
		return nil, ErrChargeInProgress
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.Error().Err(err).Str("lock_key", lockKey).Msg("release charge lock")
		}
	}()

	// Step 1: billing company, consultations, responsible party, patient.
	company, err := s.companies.GetByID(ctx, req.TenantBillingID)
	if err != nil {
		return nil, fmt.Errorf("load billing company: %w", err)
	}
	if !company.Active {
		return nil, fmt.Errorf("billing company %s is inactive", company.ID)
	}
	creds := gateway.Credentials{APIKey: company.GatewayAPIKey}

	consultations, err := s.consultations.GetByIDs(ctx, req.ConsultationIDs)
	if err != nil {
		return nil, fmt.Errorf("load consultations: %w", err)
	}
	if len(consultations) != len(req.ConsultationIDs) {
		return nil, fmt.Errorf("found %d of %d consultations", len(consultations), len(req.ConsultationIDs))
	}
	for _, c := range consultations {
		if c.TenantBillingID != company.ID {
			return nil, fmt.Errorf("consultation %s belongs to another billing company", c.ID)
		}
		if c.Charged() {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyCharged, c.ID)
		}
	}

	responsible, err := s.persons.GetByID(ctx, req.ResponsiblePartyID)
	if err != nil {
		return nil, fmt.Errorf("load responsible party: %w", err)
	}
	patient, err := s.persons.GetByID(ctx, consultations[0].PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}

	// Step 2: resolve the external customer. Fatal on failure.
	customerID, err := s.resolver.Resolve(ctx, creds, responsible)
	if err != nil {
		return nil, err
	}

	var warnings []string

	// Step 3: suppress the gateway's own customer notifications. Best effort.
	if err := s.gw.DisableNotifications(ctx, creds, customerID); err != nil {
		s.logger.Warn().Err(err).Str("customer_id", customerID).Msg("disable gateway notifications")
		warnings = append(warnings, fmt.Sprintf("notification suppression failed: %v", err))
	}

	// Step 4: totals, description, due date, idempotency reference.
	var total float64
	for _, c := range consultations {
		total += c.ServiceValue
	}
	description := BuildChargeDescription(consultations, patient.Name, patient.TaxID)
	now := s.now()
	dueDate := now.Add(dueDateOffset)
	reference := externalReference(now)

	// Step 5: create the external charge. Fatal on failure, nothing written.
	payment, err := s.gw.CreatePayment(ctx, creds, gateway.CreatePaymentRequest{
		CustomerID:        customerID,
		BillingType:       gateway.BillingTypePix,
		Value:             total,
		DueDate:           dueDate.Format("2006-01-02"),
		Description:       description,
		ExternalReference: reference,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChargeCreation, err)
	}

	// Step 6: back-link consultations. The charge now exists at the gateway,
	// so failure here is a partial success the operator must reconcile.
	if err := s.consultations.SetPaymentReference(ctx, req.ConsultationIDs, payment.ID); err != nil {
		s.logger.Error().Err(err).
			Str("payment_id", payment.ID).
			Msg("consultation linkage failed after charge creation")
		return nil, &PartialChargeError{ExternalPaymentID: payment.ID, Err: err}
	}

	// Step 7: write the ledger mirror. The charge and linkage already
	// succeeded, so failure only degrades local reporting.
	invoice := &Invoice{
		ExternalPaymentID:  payment.ID,
		TenantBillingID:    company.ID,
		ResponsiblePartyID: responsible.ID,
		PatientID:          patient.ID,
		TotalValue:         total,
		Description:        description,
		DueDate:            dueDate,
		Status:             InvoiceStatusPending,
		ConsultationIDs:    req.ConsultationIDs,
		GatewayRawPayload:  payment.Raw,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		s.logger.Warn().Err(err).
			Str("payment_id", payment.ID).
			Msg("ledger write failed; invoice must be reconciled from the gateway record")
		warnings = append(warnings, fmt.Sprintf("ledger write failed: %v", err))
		invoice = nil
	}

	s.publish(ctx, EventInvoiceCreated, map[string]interface{}{
		"external_payment_id": payment.ID,
		"tenant_billing_id":   company.ID,
		"total_value":         total,
		"due_date":            dueDate.Format("2006-01-02"),
	})

	return &ChargeOutcome{
		ExternalPaymentID: payment.ID,
		Invoice:           invoice,
		TotalValue:        total,
		Description:       description,
		Warnings:          warnings,
	}, nil
}

// UpdateChargeRequest carries mutable charge fields for UpdateCharge.
type UpdateChargeRequest struct {
	Value   *float64 `json:"value,omitempty"`
	DueDate *string  `json:"due_date,omitempty"`
}

// UpdateCharge changes an existing charge at the gateway.
func (s *Service) UpdateCharge(ctx context.Context, tenantBillingID uuid.UUID, paymentID string, req UpdateChargeRequest) (*gateway.Payment, error) {
	creds, err := s.credentials(ctx, tenantBillingID)
	if err != nil {
		return nil, err
	}
	return s.gw.UpdatePayment(ctx, creds, paymentID, gateway.UpdatePaymentRequest{
		Value:   req.Value,
		DueDate: req.DueDate,
	})
}

// CancelCharge removes an unpaid charge at the gateway and mirrors the
// cancellation on the local ledger.
func (s *Service) CancelCharge(ctx context.Context, tenantBillingID uuid.UUID, paymentID string) error {
	creds, err := s.credentials(ctx, tenantBillingID)
	if err != nil {
		return err
	}
	if err := s.gw.CancelPayment(ctx, creds, paymentID); err != nil {
		return fmt.Errorf("cancel charge: %w", err)
	}
	if err := s.invoices.UpdateStatus(ctx, paymentID, InvoiceStatusCancelled); err != nil {
		s.logger.Warn().Err(err).Str("payment_id", paymentID).Msg("ledger status update failed")
	}
	s.publish(ctx, EventInvoiceCancelled, map[string]string{"external_payment_id": paymentID})
	return nil
}

// ConfirmCashPayment marks a charge as settled in cash at the front desk.
func (s *Service) ConfirmCashPayment(ctx context.Context, tenantBillingID uuid.UUID, paymentID string, paymentDate time.Time, value float64) (*gateway.Payment, error) {
	creds, err := s.credentials(ctx, tenantBillingID)
	if err != nil {
		return nil, err
	}
	payment, err := s.gw.ConfirmCashReceipt(ctx, creds, paymentID, gateway.ConfirmCashReceiptRequest{
		PaymentDate: paymentDate.Format("2006-01-02"),
		Value:       value,
	})
	if err != nil {
		return nil, fmt.Errorf("confirm cash receipt: %w", err)
	}
	if err := s.invoices.UpdateStatus(ctx, paymentID, InvoiceStatusPaid); err != nil {
		s.logger.Warn().Err(err).Str("payment_id", paymentID).Msg("ledger status update failed")
	}
	s.publish(ctx, EventInvoicePaid, map[string]string{"external_payment_id": paymentID})
	return payment, nil
}

// EmitFiscalInvoice schedules and authorizes the fiscal invoice for a charged
// ledger entry.
func (s *Service) EmitFiscalInvoice(ctx context.Context, tenantBillingID uuid.UUID, paymentID string) (*gateway.Invoice, error) {
	creds, err := s.credentials(ctx, tenantBillingID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.invoices.GetByExternalPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("load ledger entry: %w", err)
	}

	scheduled, err := s.gw.ScheduleInvoice(ctx, creds, gateway.ScheduleInvoiceRequest{
		PaymentID:          paymentID,
		ServiceDescription: ledger.Description,
		Value:              ledger.TotalValue,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule fiscal invoice: %w", err)
	}
	authorized, err := s.gw.AuthorizeInvoice(ctx, creds, scheduled.ID)
	if err != nil {
		return nil, fmt.Errorf("authorize fiscal invoice: %w", err)
	}
	return authorized, nil
}

// ListInvoices returns ledger entries for reporting screens.
func (s *Service) ListInvoices(ctx context.Context, limit, offset int) ([]*Invoice, int, error) {
	return s.invoices.List(ctx, limit, offset)
}

// GetInvoice returns one ledger entry.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) credentials(ctx context.Context, tenantBillingID uuid.UUID) (gateway.Credentials, error) {
	company, err := s.companies.GetByID(ctx, tenantBillingID)
	if err != nil {
		return gateway.Credentials{}, fmt.Errorf("load billing company: %w", err)
	}
	return gateway.Credentials{APIKey: company.GatewayAPIKey}, nil
}

func (s *Service) publish(ctx context.Context, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Enqueue(ctx, eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("enqueue webhook event")
	}
}

// chargeLockKey derives a stable lock key from the consultation id set,
// independent of the order the caller supplied them in.
func chargeLockKey(ids []uuid.UUID) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	sort.Strings(strs)
	sum := sha256.Sum256([]byte(strings.Join(strs, ",")))
	return hex.EncodeToString(sum[:])
}

// externalReference builds the per-attempt idempotency reference sent to the
// gateway: a date prefix for operator legibility plus a short random suffix
// so repeated attempts on the same day are never treated as duplicates.
func externalReference(now time.Time) string {
	var buf [4]byte
	rand.Read(buf[:])
	return now.Format("20060102") + "-" + hex.EncodeToString(buf[:])
}
