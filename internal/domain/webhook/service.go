package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service exposes subscription management and queue operations. Its Enqueue
// method is the producer side of the delivery queue.
type Service struct {
	subs  SubscriptionRepository
	queue QueueRepository
	// engine is consulted for immediate dispatch (test sends) and cache
	// refreshes after subscription changes. Nil-safe for producers that only
	// enqueue.
	engine *Queue
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(subs SubscriptionRepository, queue QueueRepository, engine *Queue, logger zerolog.Logger) *Service {
	return &Service{
		subs:   subs,
		queue:  queue,
		engine: engine,
		logger: logger.With().Str("component", "webhook_service").Logger(),
		now:    time.Now,
	}
}

// CreateSubscription registers a new endpoint. The URL must be https. A
// signing secret is generated and returned on the subscription exactly once.
func (s *Service) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if err := ValidateURL(sub.URL); err != nil {
		return err
	}
	if len(sub.EventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	if sub.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		sub.Secret = secret
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return err
	}
	s.refreshEngine(ctx)
	return nil
}

func (s *Service) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.subs.GetByID(ctx, id)
}

func (s *Service) ListSubscriptions(ctx context.Context, limit, offset int) ([]*Subscription, int, error) {
	return s.subs.List(ctx, limit, offset)
}

func (s *Service) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	if err := ValidateURL(sub.URL); err != nil {
		return err
	}
	if len(sub.EventTypes) == 0 {
		return fmt.Errorf("at least one event type is required")
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}
	s.refreshEngine(ctx)
	return nil
}

func (s *Service) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	if err := s.subs.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshEngine(ctx)
	return nil
}

// Enqueue appends a domain event to the delivery queue. The payload is
// marshalled now so the queue row is self-contained.
func (s *Service) Enqueue(ctx context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	item := &QueueItem{
		EventType:   eventType,
		Payload:     data,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		NextRetryAt: s.now(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue webhook event: %w", err)
	}
	s.logger.Debug().Str("event", eventType).Str("item", item.ID.String()).Msg("event enqueued")
	return nil
}

func (s *Service) GetQueueItem(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	return s.queue.GetByID(ctx, id)
}

func (s *Service) ListQueueItems(ctx context.Context, status string, limit, offset int) ([]*QueueItem, int, error) {
	return s.queue.List(ctx, status, limit, offset)
}

func (s *Service) ListDeliveries(ctx context.Context, itemID uuid.UUID) ([]*DeliveryLog, error) {
	return s.queue.ListDeliveries(ctx, itemID)
}

// Retry re-arms a delivered or failed queue item: attempts go back to zero and
// the item becomes due immediately. In-flight items cannot be retried.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*QueueItem, error) {
	item, err := s.queue.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status == StatusInFlight {
		return nil, fmt.Errorf("queue item %s is in flight", id)
	}
	item.Status = StatusPending
	item.Attempts = 0
	item.LastError = nil
	item.DeliveredAt = nil
	item.NextRetryAt = s.now()
	if err := s.queue.Update(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Info().Str("item", item.ID.String()).Str("event", item.EventType).Msg("queue item re-armed for delivery")
	return item, nil
}

// TestSend dispatches a synthetic event to one subscription synchronously and
// records the result as a queue item with its delivery log, so test sends are
// auditable like real traffic.
func (s *Service) TestSend(ctx context.Context, subscriptionID uuid.UUID) (*QueueItem, *DeliveryLog, error) {
	if s.engine == nil {
		return nil, nil, fmt.Errorf("delivery engine not configured")
	}
	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"teste":     true,
		"timestamp": s.now().UTC(),
	})
	item := &QueueItem{
		EventType:   "webhook.test",
		Payload:     payload,
		Status:      StatusInFlight,
		MaxAttempts: 1,
		NextRetryAt: s.now(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		return nil, nil, fmt.Errorf("record test send: %w", err)
	}

	code, preview, sendErr := s.engine.send(ctx, sub, item)
	log := &DeliveryLog{
		QueueItemID:     item.ID,
		SubscriptionID:  sub.ID,
		URL:             sub.URL,
		StatusCode:      code,
		ResponsePreview: preview,
		AttemptedAt:     s.now(),
	}
	item.Attempts = 1
	if sendErr != nil {
		msg := sendErr.Error()
		log.Error = &msg
		item.Status = StatusFailed
		item.LastError = &msg
	} else {
		now := s.now()
		item.Status = StatusDelivered
		item.DeliveredAt = &now
	}
	if err := s.queue.RecordDelivery(ctx, log); err != nil {
		s.logger.Error().Err(err).Str("item", item.ID.String()).Msg("failed to record test delivery")
	}
	if err := s.queue.Update(ctx, item); err != nil {
		s.logger.Error().Err(err).Str("item", item.ID.String()).Msg("failed to update test send item")
	}
	return item, log, nil
}

func (s *Service) refreshEngine(ctx context.Context) {
	if s.engine != nil {
		s.engine.RefreshCache(ctx)
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
