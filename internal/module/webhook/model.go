package webhook

import (
	"encoding/json"
	"time"
)

const (
	// MaxRetries is the number of failed redeliveries after which a webhook
	// is dropped.
	MaxRetries = 3
	// InitialRetryDelay is the wait before the first redelivery.
	InitialRetryDelay = 5 * time.Minute
	// BackoffBase is multiplied by 2^retryCount after each failed redelivery.
	BackoffBase = 5 * time.Minute
)

// Event is an inbound processor event that could not be handled.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FailedWebhook is one queued redelivery. JSON field names match the
// failed-webhooks.json files written by earlier releases.
type FailedWebhook struct {
	ID           string          `json:"id"`
	EventType    string          `json:"eventType"`
	EventID      string          `json:"eventId"`
	Payload      json.RawMessage `json:"payload"`
	Error        string          `json:"error"`
	RetryCount   int             `json:"retryCount"`
	FirstAttempt time.Time       `json:"firstAttempt"`
	LastAttempt  time.Time       `json:"lastAttempt"`
	NextRetryAt  time.Time       `json:"nextRetry"`
}

// Exhausted reports whether the webhook has used up its retries.
func (w *FailedWebhook) Exhausted() bool {
	return w.RetryCount >= MaxRetries
}

// Backoff returns the delay scheduled after the given number of failed
// redeliveries: 10m, 20m, 40m for 1, 2, 3.
func Backoff(retryCount int) time.Duration {
	return BackoffBase << retryCount
}

// Outcome of one queued webhook during a tick.
const (
	OutcomeDelivered   = "delivered"
	OutcomeRescheduled = "rescheduled"
	OutcomeExpired     = "expired"
	OutcomeWaiting     = "waiting"
)

// TickResult counts what one retry pass did.
type TickResult struct {
	Delivered   int `json:"delivered"`
	Rescheduled int `json:"rescheduled"`
	Expired     int `json:"expired"`
	Waiting     int `json:"waiting"`
}

// RetryStats summarizes the queue.
type RetryStats struct {
	Total         int         `json:"total"`
	ByRetryCount  map[int]int `json:"byRetryCount"`
	OldestFailure *time.Time  `json:"oldestFailure"`
}
