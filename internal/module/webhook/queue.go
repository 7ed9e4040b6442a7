package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"

	apperrors "github.com/vpio/server/internal/utils/errors"
	"github.com/vpio/server/internal/utils/metrics"
)

// Deliverer re-dispatches a stored event payload through the same path used
// when it was first received.
type Deliverer interface {
	Deliver(ctx context.Context, payload json.RawMessage) error
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithClock sets the clock used to stamp new entries.
func WithClock(clk clock.Clock) QueueOption {
	return func(q *Queue) {
		if clk != nil {
			q.clock = clk
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// Queue holds failed webhook deliveries and retries them with exponential
// backoff. The algorithm is the same whichever QueueStore backs it.
type Queue struct {
	// mu covers each whole-collection load, compute, save cycle.
	mu        sync.Mutex
	store     QueueStore
	deliverer Deliverer
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewQueue creates a retry queue.
func NewQueue(store QueueStore, deliverer Deliverer, logger *zap.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		store:     store,
		deliverer: deliverer,
		clock:     clock.WallClock,
		logger:    logger.Named("webhook-retry"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddFailedWebhook queues event for its first redelivery in InitialRetryDelay.
func (q *Queue) AddFailedWebhook(ctx context.Context, event Event, cause error) (*FailedWebhook, error) {
	now := q.clock.Now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	w := &FailedWebhook{
		ID:           uuid.NewString(),
		EventType:    event.Type,
		EventID:      event.ID,
		Payload:      event.Payload,
		Error:        msg,
		RetryCount:   0,
		FirstAttempt: now,
		LastAttempt:  now,
		NextRetryAt:  now.Add(InitialRetryDelay),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	list = append(list, w)
	if err := q.store.Save(ctx, list); err != nil {
		return nil, fmt.Errorf("save queue: %w", err)
	}
	q.metrics.SetWebhookQueueDepth(len(list))

	q.logger.Info("webhook queued for retry",
		zap.String("webhook_id", w.ID),
		zap.String("event_id", w.EventID),
		zap.String("event_type", w.EventType),
		zap.Time("next_retry", w.NextRetryAt),
	)
	return w, nil
}

// RetryFailedWebhooks runs one retry pass at now and replaces the stored
// collection with the entries still pending.
func (q *Queue) RetryFailedWebhooks(ctx context.Context, now time.Time) (*TickResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	result := &TickResult{}
	if len(list) == 0 {
		return result, nil
	}
	q.logger.Debug("checking failed webhooks", zap.Int("count", len(list)))

	kept := make([]*FailedWebhook, 0, len(list))
	for _, w := range list {
		outcome := q.step(ctx, w, now)
		q.metrics.RecordWebhookRetry(outcome)

		switch outcome {
		case OutcomeExpired:
			result.Expired++
		case OutcomeDelivered:
			result.Delivered++
		case OutcomeWaiting:
			result.Waiting++
			kept = append(kept, w)
		case OutcomeRescheduled:
			result.Rescheduled++
			kept = append(kept, w)
		}
	}

	if err := q.store.Save(ctx, kept); err != nil {
		return result, fmt.Errorf("save queue: %w", err)
	}
	q.metrics.SetWebhookQueueDepth(len(kept))
	return result, nil
}

// step advances one webhook and reports what happened to it.
func (q *Queue) step(ctx context.Context, w *FailedWebhook, now time.Time) string {
	if w.Exhausted() {
		q.logger.Warn("webhook exceeded max retries, dropping",
			zap.String("webhook_id", w.ID),
			zap.String("event_id", w.EventID),
			zap.Int("retry_count", w.RetryCount),
			zap.String("last_error", w.Error),
			zap.Error(apperrors.ErrRetryExhausted),
		)
		return OutcomeExpired
	}

	// An interrupted tick leaves the remaining entries untouched.
	if w.NextRetryAt.After(now) || ctx.Err() != nil {
		return OutcomeWaiting
	}

	err := q.deliverer.Deliver(ctx, w.Payload)
	if err == nil {
		q.logger.Info("webhook redelivered", zap.String("webhook_id", w.ID), zap.String("event_id", w.EventID))
		return OutcomeDelivered
	}

	w.RetryCount++
	w.LastAttempt = now.UTC()
	w.Error = err.Error()
	delay := Backoff(w.RetryCount)
	w.NextRetryAt = now.UTC().Add(delay)

	q.logger.Warn("webhook redelivery failed",
		zap.String("webhook_id", w.ID),
		zap.Int("retry_count", w.RetryCount),
		zap.Duration("next_retry_in", delay),
		zap.Error(err),
	)
	return OutcomeRescheduled
}

// GetRetryStats summarizes the stored collection.
func (q *Queue) GetRetryStats(ctx context.Context) (*RetryStats, error) {
	q.mu.Lock()
	list, err := q.store.Load(ctx)
	q.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	stats := &RetryStats{
		Total:        len(list),
		ByRetryCount: make(map[int]int),
	}
	for _, w := range list {
		stats.ByRetryCount[w.RetryCount]++
		if stats.OldestFailure == nil || w.FirstAttempt.Before(*stats.OldestFailure) {
			first := w.FirstAttempt
			stats.OldestFailure = &first
		}
	}
	return stats, nil
}
