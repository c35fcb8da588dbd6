package webhook

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Queue item statuses.
const (
	StatusPending   = "pending"
	StatusInFlight  = "in_flight"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// DefaultMaxAttempts bounds delivery retries per queue item.
const DefaultMaxAttempts = 3

// Subscription is a consumer-registered endpoint for domain events.
type Subscription struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	URL        string            `db:"url" json:"url"`
	EventTypes []string          `db:"event_types" json:"event_types"`
	Active     bool              `db:"active" json:"active"`
	Headers    map[string]string `db:"headers" json:"headers,omitempty"`
	// Secret signs outgoing payloads (HMAC-SHA256) so subscribers can verify
	// origin. Generated at registration, shown once.
	Secret    string    `db:"secret" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Matches reports whether the subscription wants the given event type.
// Patterns: exact ("invoice.created"), prefix wildcard ("invoice.*"), or "*".
func (s *Subscription) Matches(eventType string) bool {
	for _, pattern := range s.EventTypes {
		if pattern == "*" || pattern == eventType {
			return true
		}
		if strings.HasSuffix(pattern, ".*") &&
			strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}

// ValidateURL checks that a subscription URL is well-formed and uses secure
// transport. Webhook bodies carry billing data, so plain http is refused.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("url scheme must be https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

// QueueItem is one durable outbound event. State machine:
// pending -> in_flight -> delivered, or back to pending with attempts+1 and a
// later next_retry_at, until attempts reaches max_attempts and the item turns
// failed. Failed and delivered items only move again through a manual retry.
type QueueItem struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      string          `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	MaxAttempts int             `db:"max_attempts" json:"max_attempts"`
	NextRetryAt time.Time       `db:"next_retry_at" json:"next_retry_at"`
	LastError   *string         `db:"last_error" json:"last_error,omitempty"`
	DeliveredAt *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// DeliveryLog records one dispatch attempt to one subscription.
type DeliveryLog struct {
	ID              uuid.UUID `db:"id" json:"id"`
	QueueItemID     uuid.UUID `db:"queue_item_id" json:"queue_item_id"`
	SubscriptionID  uuid.UUID `db:"subscription_id" json:"subscription_id"`
	URL             string    `db:"url" json:"url"`
	StatusCode      int       `db:"status_code" json:"status_code"`
	ResponsePreview string    `db:"response_preview" json:"response_preview,omitempty"`
	Error           *string   `db:"error" json:"error,omitempty"`
	AttemptedAt     time.Time `db:"attempted_at" json:"attempted_at"`
}

// Envelope is the JSON body posted to subscribers.
type Envelope struct {
	Tipo      string          `json:"tipo"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	WebhookID uuid.UUID       `json:"webhook_id"`
}
