package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/gateway"
)

func newBillingServer(t *testing.T, f *fixture, roles []string) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func chargeBody(t *testing.T, f *fixture) string {
	t.Helper()
	body, err := json.Marshal(f.req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(body)
}

func TestChargeHandler_AdminSucceeds(t *testing.T) {
	f := newFixture(t)
	e := newBillingServer(t, f, []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges", strings.NewReader(chargeBody(t, f)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var outcome ChargeOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if outcome.ExternalPaymentID != "pay_001" {
		t.Errorf("payment id = %q", outcome.ExternalPaymentID)
	}
}

func TestChargeHandler_NonAdminForbidden(t *testing.T) {
	f := newFixture(t)
	e := newBillingServer(t, f, []string{"billing"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges", strings.NewReader(chargeBody(t, f)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if f.gw.createPayCalls != 0 {
		t.Error("orchestrator must not run for non-admin callers")
	}
}

func TestChargeHandler_PartialFailureSurfaced(t *testing.T) {
	f := newFixture(t)
	f.consultations.linkErr = fmt.Errorf("connection reset")
	e := newBillingServer(t, f, []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges", strings.NewReader(chargeBody(t, f)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["kind"] != "partial" {
		t.Errorf("kind = %v", body["kind"])
	}
	if body["external_payment_id"] != "pay_001" {
		t.Errorf("external_payment_id = %v", body["external_payment_id"])
	}
}

func TestChargeHandler_GatewayFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.gw.createPayFn = func(req gateway.CreatePaymentRequest) (*gateway.Payment, error) {
		return nil, &gateway.Error{StatusCode: 500}
	}
	e := newBillingServer(t, f, []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges", strings.NewReader(chargeBody(t, f)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestChargeHandler_LockConflict(t *testing.T) {
	f := newFixture(t)
	f.locks.denyAll = true
	e := newBillingServer(t, f, []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges", strings.NewReader(chargeBody(t, f)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestChargeHandler_EmptyConsultations(t *testing.T) {
	f := newFixture(t)
	e := newBillingServer(t, f, []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges",
		strings.NewReader(`{"consultation_ids":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListInvoices_BillingRoleAllowed(t *testing.T) {
	f := newFixture(t)
	e := newBillingServer(t, f, []string{"billing"})

	// Seed one ledger row through a successful charge as admin.
	adminSrv := newBillingServer(t, f, []string{"admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/charges", strings.NewReader(chargeBody(t, f)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	adminSrv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed charge failed: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}
