package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, testLogger)
}

func TestSearchCustomerByTaxID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.URL.Query().Get("cpfCnpj"); got != "12345678900" {
			t.Errorf("cpfCnpj query = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-acme" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"totalCount": 1,
			"data": []map[string]string{
				{"id": "cus_001", "name": "João Silva", "cpfCnpj": "12345678900"},
			},
		})
	})

	page, err := client.SearchCustomerByTaxID(context.Background(), Credentials{APIKey: "key-acme"}, "12345678900")
	if err != nil {
		t.Fatalf("SearchCustomerByTaxID: %v", err)
	}
	if page.TotalCount != 1 || len(page.Data) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Data[0].ID != "cus_001" {
		t.Errorf("customer id = %q", page.Data[0].ID)
	}
	if len(page.Raw) == 0 {
		t.Error("raw payload not preserved")
	}
}

func TestCreateCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/customers" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req CreateCustomerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.CPFCNPJ != "12345678900" {
			t.Errorf("cpfCnpj = %q", req.CPFCNPJ)
		}
		json.NewEncoder(w).Encode(Customer{ID: "cus_new", Name: req.Name, CPFCNPJ: req.CPFCNPJ})
	})

	customer, err := client.CreateCustomer(context.Background(), Credentials{APIKey: "k"}, CreateCustomerRequest{
		Name:    "João Silva",
		CPFCNPJ: "12345678900",
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	if customer.ID != "cus_new" {
		t.Errorf("customer id = %q", customer.ID)
	}
}

func TestCreatePayment_GatewayError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{
				{"code": "invalid_value", "description": "O valor da cobrança é inválido"},
			},
		})
	})

	_, err := client.CreatePayment(context.Background(), Credentials{APIKey: "k"}, CreatePaymentRequest{
		CustomerID:  "cus_001",
		BillingType: BillingTypePix,
		Value:       -1,
	})

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *gateway.Error, got %T: %v", err, err)
	}
	if gwErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", gwErr.StatusCode)
	}
	if len(gwErr.Messages) != 1 || gwErr.Messages[0] != "O valor da cobrança é inválido" {
		t.Errorf("messages = %v", gwErr.Messages)
	}
	if len(gwErr.Raw) == 0 {
		t.Error("raw error payload not preserved")
	}
}

func TestDisableNotifications(t *testing.T) {
	var gotBody map[string]bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/customers/cus_001" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "cus_001"})
	})

	if err := client.DisableNotifications(context.Background(), Credentials{APIKey: "k"}, "cus_001"); err != nil {
		t.Fatalf("DisableNotifications: %v", err)
	}
	if !gotBody["notificationDisabled"] {
		t.Error("notificationDisabled not set in request body")
	}
}

func TestCancelPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/payments/pay_9" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"deleted": true})
	})

	if err := client.CancelPayment(context.Background(), Credentials{APIKey: "k"}, "pay_9"); err != nil {
		t.Fatalf("CancelPayment: %v", err)
	}
}

func TestScheduleAndAuthorizeInvoice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/invoices":
			json.NewEncoder(w).Encode(Invoice{ID: "inv_1", PaymentID: "pay_1", Status: "SCHEDULED"})
		case r.Method == http.MethodPost && r.URL.Path == "/invoices/inv_1/authorize":
			json.NewEncoder(w).Encode(Invoice{ID: "inv_1", PaymentID: "pay_1", Status: "AUTHORIZED"})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	creds := Credentials{APIKey: "k"}
	inv, err := client.ScheduleInvoice(context.Background(), creds, ScheduleInvoiceRequest{
		PaymentID:          "pay_1",
		ServiceDescription: "1 consulta",
		Value:              150,
	})
	if err != nil {
		t.Fatalf("ScheduleInvoice: %v", err)
	}
	if inv.Status != "SCHEDULED" {
		t.Errorf("status = %q", inv.Status)
	}

	inv, err = client.AuthorizeInvoice(context.Background(), creds, "inv_1")
	if err != nil {
		t.Fatalf("AuthorizeInvoice: %v", err)
	}
	if inv.Status != "AUTHORIZED" {
		t.Errorf("status = %q", inv.Status)
	}
}

func TestConfirmCashReceipt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay_3/receiveInCash" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Payment{ID: "pay_3", Status: "RECEIVED_IN_CASH"})
	})

	payment, err := client.ConfirmCashReceipt(context.Background(), Credentials{APIKey: "k"}, "pay_3", ConfirmCashReceiptRequest{
		PaymentDate: "2025-03-10",
		Value:       80,
	})
	if err != nil {
		t.Fatalf("ConfirmCashReceipt: %v", err)
	}
	if payment.Status != "RECEIVED_IN_CASH" {
		t.Errorf("status = %q", payment.Status)
	}
}

func TestUpdatePayment_OmitsNilFields(t *testing.T) {
	var gotBody map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Payment{ID: "pay_1", Value: 200})
	})

	value := 200.0
	_, err := client.UpdatePayment(context.Background(), Credentials{APIKey: "k"}, "pay_1", UpdatePaymentRequest{
		Value: &value,
	})
	if err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}
	if _, ok := gotBody["dueDate"]; ok {
		t.Error("dueDate should be omitted when nil")
	}
	if gotBody["value"] != 200.0 {
		t.Errorf("value = %v", gotBody["value"])
	}
}
