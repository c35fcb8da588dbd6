package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestService(subs *stubSubRepo, queue *stubQueueRepo) *Service {
	engine := newTestQueue(subs, queue)
	svc := NewService(subs, queue, engine, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateSubscription_RejectsPlainHTTP(t *testing.T) {
	svc := newTestService(&stubSubRepo{}, newStubQueueRepo())
	err := svc.CreateSubscription(context.Background(), &Subscription{
		URL:        "http://example.com/hook",
		EventTypes: []string{"invoice.created"},
	})
	if err == nil {
		t.Fatal("expected error for http url")
	}
}

func TestCreateSubscription_RequiresEventTypes(t *testing.T) {
	svc := newTestService(&stubSubRepo{}, newStubQueueRepo())
	err := svc.CreateSubscription(context.Background(), &Subscription{
		URL: "https://example.com/hook",
	})
	if err == nil {
		t.Fatal("expected error for empty event types")
	}
}

func TestCreateSubscription_GeneratesSecret(t *testing.T) {
	subs := &stubSubRepo{}
	svc := newTestService(subs, newStubQueueRepo())
	sub := &Subscription{
		URL:        "https://example.com/hook",
		EventTypes: []string{"invoice.created"},
		Active:     true,
	}
	if err := svc.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(sub.Secret) != 64 {
		t.Errorf("secret length = %d, want 64 hex chars", len(sub.Secret))
	}
	if sub.ID == uuid.Nil {
		t.Error("id not assigned")
	}
}

func TestEnqueue_Defaults(t *testing.T) {
	queueRepo := newStubQueueRepo()
	svc := newTestService(&stubSubRepo{}, queueRepo)

	err := svc.Enqueue(context.Background(), "invoice.created", map[string]string{"id": "inv_1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	items, _, _ := queueRepo.List(context.Background(), "", 10, 0)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	item := items[0]
	if item.Status != StatusPending {
		t.Errorf("status = %q", item.Status)
	}
	if item.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("max attempts = %d, want %d", item.MaxAttempts, DefaultMaxAttempts)
	}
	if item.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", item.Attempts)
	}
	if string(item.Payload) != `{"id":"inv_1"}` {
		t.Errorf("payload = %s", item.Payload)
	}
}

func TestRetry_ResetsFailedItem(t *testing.T) {
	queueRepo := newStubQueueRepo()
	svc := newTestService(&stubSubRepo{}, queueRepo)

	errMsg := "http status 500"
	item := &QueueItem{
		EventType:   "invoice.created",
		Payload:     []byte(`{}`),
		Status:      StatusFailed,
		Attempts:    3,
		MaxAttempts: 3,
		LastError:   &errMsg,
		NextRetryAt: time.Date(2025, 3, 15, 11, 0, 0, 0, time.UTC),
	}
	queueRepo.Enqueue(context.Background(), item)

	got, err := svc.Retry(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", got.Attempts)
	}
	if got.LastError != nil {
		t.Errorf("last_error = %v, want nil", *got.LastError)
	}
	if !got.NextRetryAt.Equal(svc.now()) {
		t.Errorf("next retry = %v, want %v", got.NextRetryAt, svc.now())
	}
}

func TestRetry_RefusesInFlightItem(t *testing.T) {
	queueRepo := newStubQueueRepo()
	svc := newTestService(&stubSubRepo{}, queueRepo)

	item := &QueueItem{EventType: "invoice.created", Payload: []byte(`{}`), Status: StatusInFlight}
	queueRepo.Enqueue(context.Background(), item)

	if _, err := svc.Retry(context.Background(), item.ID); err == nil {
		t.Fatal("expected error retrying in-flight item")
	}
}

func TestTestSend_RecordsDeliveredItem(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	subs := &stubSubRepo{}
	sub := &Subscription{URL: srv.URL, EventTypes: []string{"invoice.created"}, Active: true, Secret: "s3cret"}
	subs.Create(context.Background(), sub)
	queueRepo := newStubQueueRepo()
	svc := newTestService(subs, queueRepo)

	item, log, err := svc.TestSend(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("test send: %v", err)
	}
	if item.Status != StatusDelivered {
		t.Errorf("status = %q, want delivered", item.Status)
	}
	if item.Attempts != 1 || item.MaxAttempts != 1 {
		t.Errorf("attempts = %d/%d, want 1/1", item.Attempts, item.MaxAttempts)
	}
	if item.EventType != "webhook.test" {
		t.Errorf("event type = %q", item.EventType)
	}
	if log.StatusCode != http.StatusNoContent {
		t.Errorf("log status = %d", log.StatusCode)
	}
	if gotSig == "" {
		t.Error("test send was not signed")
	}

	// The test send is persisted like real traffic.
	stored, err := queueRepo.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("stored item: %v", err)
	}
	if stored.Status != StatusDelivered {
		t.Errorf("stored status = %q", stored.Status)
	}
	logs, _ := queueRepo.ListDeliveries(context.Background(), item.ID)
	if len(logs) != 1 {
		t.Errorf("delivery logs = %d, want 1", len(logs))
	}
}

func TestTestSend_FailureMarksItemFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	subs := &stubSubRepo{}
	sub := &Subscription{URL: srv.URL, EventTypes: []string{"invoice.created"}, Active: true}
	subs.Create(context.Background(), sub)
	svc := newTestService(subs, newStubQueueRepo())

	item, log, err := svc.TestSend(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("test send: %v", err)
	}
	if item.Status != StatusFailed {
		t.Errorf("status = %q, want failed", item.Status)
	}
	if item.LastError == nil {
		t.Error("last_error not set")
	}
	if log.StatusCode != http.StatusForbidden {
		t.Errorf("log status = %d", log.StatusCode)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"tipo":"invoice.created"}`)
	sig := "sha256=" + SignPayload(payload, "secret")
	if !VerifySignature(payload, "secret", sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(payload, "other", sig) {
		t.Error("signature verified under wrong secret")
	}
	if VerifySignature([]byte(`tampered`), "secret", sig) {
		t.Error("signature verified for tampered payload")
	}
}
