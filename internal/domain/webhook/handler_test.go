package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

func newWebhookServer(t *testing.T, svc *Service, roles []string) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func TestSubscriptionHandler_CreateReturnsSecret(t *testing.T) {
	svc := newTestService(&stubSubRepo{}, newStubQueueRepo())
	e := newWebhookServer(t, svc, []string{"admin"})

	body := `{"url":"https://example.com/hook","event_types":["invoice.created","invoice.cancelled"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	secret, _ := resp["secret"].(string)
	if len(secret) != 64 {
		t.Errorf("secret = %q, want 64 hex chars", secret)
	}
	if resp["active"] != true {
		t.Errorf("active = %v, want true", resp["active"])
	}
}

func TestSubscriptionHandler_CreateRejectsHTTPURL(t *testing.T) {
	svc := newTestService(&stubSubRepo{}, newStubQueueRepo())
	e := newWebhookServer(t, svc, []string{"admin"})

	body := `{"url":"http://example.com/hook","event_types":["invoice.created"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubscriptionHandler_NonAdminForbidden(t *testing.T) {
	svc := newTestService(&stubSubRepo{}, newStubQueueRepo())
	e := newWebhookServer(t, svc, []string{"billing"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/queue", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestQueueHandler_RetryNotFound(t *testing.T) {
	svc := newTestService(&stubSubRepo{}, newStubQueueRepo())
	e := newWebhookServer(t, svc, []string{"admin"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/queue/0b9fda1c-46c7-4a2e-9a40-df13a9cbc8ec/retry", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestQueueHandler_ListFiltersByStatus(t *testing.T) {
	queueRepo := newStubQueueRepo()
	svc := newTestService(&stubSubRepo{}, queueRepo)
	queueRepo.Enqueue(context.Background(), &QueueItem{EventType: "invoice.created", Payload: []byte(`{}`), Status: StatusFailed})
	queueRepo.Enqueue(context.Background(), &QueueItem{EventType: "invoice.paid", Payload: []byte(`{}`), Status: StatusDelivered})

	e := newWebhookServer(t, svc, []string{"admin"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/queue?status=failed", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data  []QueueItem `json:"data"`
		Total int         `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 {
		t.Fatalf("total = %d, items = %d, want 1/1", resp.Total, len(resp.Data))
	}
	if resp.Data[0].Status != StatusFailed {
		t.Errorf("status = %q", resp.Data[0].Status)
	}
}
