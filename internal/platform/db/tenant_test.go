package db

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestContext(t *testing.T, target string, header map[string]string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestExtractTenantIDPrecedence(t *testing.T) {
	c := newTestContext(t, "/?tenant_id=from_query", map[string]string{"X-Tenant-ID": "from_header"})
	c.Set("jwt_tenant_id", "from_jwt")

	if got := extractTenantID(c, "fallback"); got != "from_jwt" {
		t.Errorf("jwt claim should win, got %q", got)
	}

	c = newTestContext(t, "/?tenant_id=from_query", map[string]string{"X-Tenant-ID": "from_header"})
	if got := extractTenantID(c, "fallback"); got != "from_header" {
		t.Errorf("header should win over query, got %q", got)
	}

	c = newTestContext(t, "/?tenant_id=from_query", nil)
	if got := extractTenantID(c, "fallback"); got != "from_query" {
		t.Errorf("query param should win over default, got %q", got)
	}

	c = newTestContext(t, "/", nil)
	if got := extractTenantID(c, "fallback"); got != "fallback" {
		t.Errorf("expected default tenant, got %q", got)
	}
}

func TestTenantIDPattern(t *testing.T) {
	valid := []string{"acme", "clinic_01", "T1"}
	for _, id := range valid {
		if !tenantIDPattern.MatchString(id) {
			t.Errorf("%q should be a valid tenant id", id)
		}
	}

	invalid := []string{"", "acme; DROP SCHEMA", "a-b", "a.b", "a b"}
	for _, id := range invalid {
		if tenantIDPattern.MatchString(id) {
			t.Errorf("%q should be rejected", id)
		}
	}
}
