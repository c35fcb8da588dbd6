package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Charging moves money; only administrators may trigger it.
	chargeGroup := api.Group("", auth.RequireRole("admin"))
	chargeGroup.POST("/billing/charges", h.ChargeConsultations)
	chargeGroup.PATCH("/billing/charges/:paymentId", h.UpdateCharge)
	chargeGroup.DELETE("/billing/charges/:paymentId", h.CancelCharge)
	chargeGroup.POST("/billing/charges/:paymentId/cash-receipt", h.ConfirmCashPayment)
	chargeGroup.POST("/billing/charges/:paymentId/fiscal-invoice", h.EmitFiscalInvoice)

	// Ledger reads for reporting screens.
	readGroup := api.Group("", auth.RequireRole("admin", "billing"))
	readGroup.GET("/billing/invoices", h.ListInvoices)
	readGroup.GET("/billing/invoices/:id", h.GetInvoice)
}

func (h *Handler) ChargeConsultations(c echo.Context) error {
	var req ChargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.ConsultationIDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "consultation_ids is required")
	}

	outcome, err := h.svc.ChargeConsultations(c.Request().Context(), req)
	if err != nil {
		var partial *PartialChargeError
		switch {
		case errors.As(err, &partial):
			// The charge exists at the gateway; the caller must not retry
			// blindly. Surface the payment id so an operator can reconcile.
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"kind":                "partial",
				"external_payment_id": partial.ExternalPaymentID,
				"error":               partial.Error(),
			})
		case errors.Is(err, ErrChargeInProgress):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, ErrMissingTaxID), errors.Is(err, ErrAlreadyCharged):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrCustomerResolution), errors.Is(err, ErrChargeCreation):
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return c.JSON(http.StatusCreated, outcome)
}

type updateChargeBody struct {
	TenantBillingID uuid.UUID `json:"tenant_billing_id"`
	UpdateChargeRequest
}

func (h *Handler) UpdateCharge(c echo.Context) error {
	var body updateChargeBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	payment, err := h.svc.UpdateCharge(c.Request().Context(), body.TenantBillingID, c.Param("paymentId"), body.UpdateChargeRequest)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, payment)
}

func (h *Handler) CancelCharge(c echo.Context) error {
	tenantBillingID, err := uuid.Parse(c.QueryParam("tenant_billing_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant_billing_id")
	}
	if err := h.svc.CancelCharge(c.Request().Context(), tenantBillingID, c.Param("paymentId")); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type cashReceiptBody struct {
	TenantBillingID uuid.UUID `json:"tenant_billing_id"`
	PaymentDate     string    `json:"payment_date"`
	Value           float64   `json:"value"`
}

func (h *Handler) ConfirmCashPayment(c echo.Context) error {
	var body cashReceiptBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	paymentDate, err := time.Parse("2006-01-02", body.PaymentDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payment_date, expected YYYY-MM-DD")
	}
	payment, err := h.svc.ConfirmCashPayment(c.Request().Context(), body.TenantBillingID, c.Param("paymentId"), paymentDate, body.Value)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, payment)
}

type fiscalInvoiceBody struct {
	TenantBillingID uuid.UUID `json:"tenant_billing_id"`
}

func (h *Handler) EmitFiscalInvoice(c echo.Context) error {
	var body fiscalInvoiceBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	invoice, err := h.svc.EmitFiscalInvoice(c.Request().Context(), body.TenantBillingID, c.Param("paymentId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, invoice)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	p := pagination.FromContext(c)
	invoices, total, err := h.svc.ListInvoices(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(invoices, total, p.Limit, p.Offset))
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	invoice, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "invoice not found")
	}
	return c.JSON(http.StatusOK, invoice)
}
