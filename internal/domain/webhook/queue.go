package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body,
// prefixed with "sha256=".
const SignatureHeader = "X-Webhook-Signature"

// maxPreviewBytes bounds how much of a subscriber response is kept in the
// delivery log.
const maxPreviewBytes = 1024

// Queue drains pending queue items and posts them to matching subscriptions.
type Queue struct {
	subs  SubscriptionRepository
	queue QueueRepository

	logger zerolog.Logger
	client *http.Client

	mu    sync.RWMutex
	cache []*Subscription

	// CacheRefreshInterval controls how often the subscription cache is refreshed.
	CacheRefreshInterval time.Duration
	// DrainInterval controls how often due queue items are polled.
	DrainInterval time.Duration
	// BatchSize is the max number of due items fetched per tick.
	BatchSize int

	now func() time.Time
}

// NewQueue creates a delivery queue with default intervals.
func NewQueue(subs SubscriptionRepository, queue QueueRepository, logger zerolog.Logger) *Queue {
	return &Queue{
		subs:                 subs,
		queue:                queue,
		logger:               logger.With().Str("component", "webhook_queue").Logger(),
		client:               &http.Client{Timeout: 10 * time.Second},
		CacheRefreshInterval: 30 * time.Second,
		DrainInterval:        5 * time.Second,
		BatchSize:            50,
		now:                  time.Now,
	}
}

// Start runs the background cache refresh and delivery loops.
// It blocks until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.refreshCache(ctx)

	cacheTicker := time.NewTicker(q.CacheRefreshInterval)
	drainTicker := time.NewTicker(q.DrainInterval)
	defer cacheTicker.Stop()
	defer drainTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cacheTicker.C:
			q.refreshCache(ctx)
		case <-drainTicker.C:
			q.drain(ctx)
		}
	}
}

// SetHTTPTimeout bounds each subscriber POST.
func (q *Queue) SetHTTPTimeout(d time.Duration) {
	if d > 0 {
		q.client.Timeout = d
	}
}

// RefreshCache forces an immediate cache refresh. Useful after subscription CRUD.
func (q *Queue) RefreshCache(ctx context.Context) {
	q.refreshCache(ctx)
}

func (q *Queue) refreshCache(ctx context.Context) {
	subs, err := q.subs.ListActive(ctx)
	if err != nil {
		q.logger.Error().Err(err).Msg("failed to refresh subscription cache")
		return
	}
	q.mu.Lock()
	q.cache = subs
	q.mu.Unlock()
}

func (q *Queue) drain(ctx context.Context) {
	items, err := q.queue.ListDue(ctx, q.now(), q.BatchSize)
	if err != nil {
		q.logger.Error().Err(err).Msg("failed to list due queue items")
		return
	}
	for _, item := range items {
		claimed, err := q.queue.Claim(ctx, item.ID)
		if err != nil {
			q.logger.Error().Err(err).Str("item", item.ID.String()).Msg("failed to claim queue item")
			continue
		}
		if !claimed {
			// Another worker took it.
			continue
		}
		item.Status = StatusInFlight
		q.deliverOne(ctx, item)
	}
}

func (q *Queue) deliverOne(ctx context.Context, item *QueueItem) {
	q.mu.RLock()
	cached := q.cache
	q.mu.RUnlock()

	var targets []*Subscription
	for _, sub := range cached {
		if sub.Matches(item.EventType) {
			targets = append(targets, sub)
		}
	}

	if len(targets) == 0 {
		q.logger.Debug().Str("event", item.EventType).Str("item", item.ID.String()).
			Msg("no subscriptions match event, marking delivered")
		q.markDelivered(ctx, item)
		return
	}

	failures := 0
	lastErr := ""
	for _, sub := range targets {
		code, preview, err := q.send(ctx, sub, item)
		log := &DeliveryLog{
			QueueItemID:     item.ID,
			SubscriptionID:  sub.ID,
			URL:             sub.URL,
			StatusCode:      code,
			ResponsePreview: preview,
			AttemptedAt:     q.now(),
		}
		if err != nil {
			msg := err.Error()
			log.Error = &msg
			failures++
			lastErr = msg
		}
		if rerr := q.queue.RecordDelivery(ctx, log); rerr != nil {
			q.logger.Error().Err(rerr).Str("item", item.ID.String()).Msg("failed to record delivery")
		}
	}

	if failures == 0 {
		q.markDelivered(ctx, item)
		return
	}
	q.markFailed(ctx, item, lastErr)
}

// send posts the envelope for item to a single subscription. It returns the
// response status code, a truncated body preview, and a non-nil error when the
// delivery did not succeed.
func (q *Queue) send(ctx context.Context, sub *Subscription, item *QueueItem) (int, string, error) {
	body, err := json.Marshal(Envelope{
		Tipo:      item.EventType,
		Timestamp: q.now().UTC(),
		Data:      item.Payload,
		WebhookID: item.ID,
	})
	if err != nil {
		return 0, "", fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}
	if sub.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+SignPayload(body, sub.Secret))
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	previewBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxPreviewBytes))
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, string(previewBytes), nil
	}
	return resp.StatusCode, string(previewBytes), fmt.Errorf("http status %d", resp.StatusCode)
}

func (q *Queue) markDelivered(ctx context.Context, item *QueueItem) {
	now := q.now()
	item.Status = StatusDelivered
	item.DeliveredAt = &now
	item.Attempts++
	item.LastError = nil
	if err := q.queue.Update(ctx, item); err != nil {
		q.logger.Error().Err(err).Str("item", item.ID.String()).Msg("failed to mark delivered")
	}
}

func (q *Queue) markFailed(ctx context.Context, item *QueueItem, errMsg string) {
	item.Attempts++
	item.LastError = &errMsg

	if item.Attempts >= item.MaxAttempts {
		item.Status = StatusFailed
		if err := q.queue.Update(ctx, item); err != nil {
			q.logger.Error().Err(err).Str("item", item.ID.String()).Msg("failed to mark item failed")
		}
		q.logger.Warn().Str("item", item.ID.String()).Str("event", item.EventType).
			Int("attempts", item.Attempts).Msg("delivery abandoned after max attempts")
		return
	}

	item.Status = StatusPending
	item.NextRetryAt = q.now().Add(retryBackoff(item.Attempts))
	if err := q.queue.Update(ctx, item); err != nil {
		q.logger.Error().Err(err).Str("item", item.ID.String()).Msg("failed to schedule retry")
	}
}

// retryBackoff returns the delay before the next attempt (1-indexed).
// Schedule: 30s, 1m, 5m.
func retryBackoff(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 30 * time.Second
	case 2:
		return 1 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// SignPayload computes the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a payload against a "sha256=<hex>" signature value.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := "sha256=" + SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
