package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// maxResponseBytes bounds how much of a gateway response is read. Gateway
// payloads are small JSON documents; anything larger is misbehavior.
const maxResponseBytes = 1 << 20

// Client performs HTTP calls against the payment gateway. It is safe for
// concurrent use; credentials are supplied per call, never stored.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// SearchCustomerByTaxID looks up customers registered under the given tax id
// in the tenant's gateway account. The gateway treats the tax id as unique
// per account, so callers use Data[0] when TotalCount > 0.
func (c *Client) SearchCustomerByTaxID(ctx context.Context, creds Credentials, taxID string) (*CustomerPage, error) {
	q := url.Values{"cpfCnpj": {taxID}}
	raw, err := c.do(ctx, creds, http.MethodGet, "/customers?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var page CustomerPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode customer search response: %w", err)
	}
	page.Raw = raw
	for i := range page.Data {
		page.Data[i].Raw = raw
	}
	return &page, nil
}

// CreateCustomer registers a new customer in the tenant's gateway account.
func (c *Client) CreateCustomer(ctx context.Context, creds Credentials, req CreateCustomerRequest) (*Customer, error) {
	raw, err := c.do(ctx, creds, http.MethodPost, "/customers", req)
	if err != nil {
		return nil, err
	}

	var customer Customer
	if err := json.Unmarshal(raw, &customer); err != nil {
		return nil, fmt.Errorf("decode customer response: %w", err)
	}
	customer.Raw = raw
	return &customer, nil
}

// DisableNotifications turns off the gateway's own outbound customer
// notifications (email/SMS) so end users are not notified twice.
func (c *Client) DisableNotifications(ctx context.Context, creds Credentials, customerID string) error {
	body := map[string]bool{"notificationDisabled": true}
	_, err := c.do(ctx, creds, http.MethodPut, "/customers/"+url.PathEscape(customerID), body)
	return err
}

// CreatePayment creates a new charge.
func (c *Client) CreatePayment(ctx context.Context, creds Credentials, req CreatePaymentRequest) (*Payment, error) {
	raw, err := c.do(ctx, creds, http.MethodPost, "/payments", req)
	if err != nil {
		return nil, err
	}

	var payment Payment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	payment.Raw = raw
	return &payment, nil
}

// UpdatePayment changes mutable fields of an existing charge.
func (c *Client) UpdatePayment(ctx context.Context, creds Credentials, paymentID string, req UpdatePaymentRequest) (*Payment, error) {
	raw, err := c.do(ctx, creds, http.MethodPut, "/payments/"+url.PathEscape(paymentID), req)
	if err != nil {
		return nil, err
	}

	var payment Payment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	payment.Raw = raw
	return &payment, nil
}

// CancelPayment removes a charge that has not been paid.
func (c *Client) CancelPayment(ctx context.Context, creds Credentials, paymentID string) error {
	_, err := c.do(ctx, creds, http.MethodDelete, "/payments/"+url.PathEscape(paymentID), nil)
	return err
}

// ScheduleInvoice schedules a fiscal invoice for a charge.
func (c *Client) ScheduleInvoice(ctx context.Context, creds Credentials, req ScheduleInvoiceRequest) (*Invoice, error) {
	raw, err := c.do(ctx, creds, http.MethodPost, "/invoices", req)
	if err != nil {
		return nil, err
	}

	var invoice Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("decode invoice response: %w", err)
	}
	invoice.Raw = raw
	return &invoice, nil
}

// AuthorizeInvoice authorizes a previously scheduled fiscal invoice for
// emission.
func (c *Client) AuthorizeInvoice(ctx context.Context, creds Credentials, invoiceID string) (*Invoice, error) {
	raw, err := c.do(ctx, creds, http.MethodPost, "/invoices/"+url.PathEscape(invoiceID)+"/authorize", nil)
	if err != nil {
		return nil, err
	}

	var invoice Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("decode invoice response: %w", err)
	}
	invoice.Raw = raw
	return &invoice, nil
}

// ConfirmCashReceipt marks a charge as received in cash.
func (c *Client) ConfirmCashReceipt(ctx context.Context, creds Credentials, paymentID string, req ConfirmCashReceiptRequest) (*Payment, error) {
	raw, err := c.do(ctx, creds, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/receiveInCash", req)
	if err != nil {
		return nil, err
	}

	var payment Payment
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}
	payment.Raw = raw
	return &payment, nil
}

// errorBody is the gateway's error envelope.
type errorBody struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

// do performs one HTTP call and returns the raw response body. Non-2xx
// responses are returned as *Error with the body preserved.
func (c *Client) do(ctx context.Context, creds Credentials, method, path string, body interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("gateway call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &Error{StatusCode: resp.StatusCode, Raw: raw}
		var eb errorBody
		if err := json.Unmarshal(raw, &eb); err == nil {
			for _, e := range eb.Errors {
				gwErr.Messages = append(gwErr.Messages, e.Description)
			}
		}
		return nil, gwErr
	}

	return raw, nil
}
