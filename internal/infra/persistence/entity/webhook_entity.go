package entity

import (
	"time"

	"github.com/vpio/server/internal/module/webhook"
)

// FailedWebhookEntity is the GORM entity for queued webhook redeliveries.
type FailedWebhookEntity struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Position     int       `gorm:"not null;index"`
	EventType    string    `gorm:"column:event_type;size:128"`
	EventID      string    `gorm:"column:event_id;size:128;index"`
	Payload      []byte    `gorm:"column:payload"`
	Error        string    `gorm:"column:error"`
	RetryCount   int       `gorm:"column:retry_count;not null;default:0"`
	FirstAttempt time.Time `gorm:"column:first_attempt"`
	LastAttempt  time.Time `gorm:"column:last_attempt"`
	NextRetryAt  time.Time `gorm:"column:next_retry_at;index"`
}

// TableName returns the table name for FailedWebhookEntity.
func (FailedWebhookEntity) TableName() string {
	return "failed_webhooks"
}

// ToDomain converts to the queue model.
func (e *FailedWebhookEntity) ToDomain() *webhook.FailedWebhook {
	return &webhook.FailedWebhook{
		ID:           e.ID,
		EventType:    e.EventType,
		EventID:      e.EventID,
		Payload:      e.Payload,
		Error:        e.Error,
		RetryCount:   e.RetryCount,
		FirstAttempt: e.FirstAttempt.UTC(),
		LastAttempt:  e.LastAttempt.UTC(),
		NextRetryAt:  e.NextRetryAt.UTC(),
	}
}

// FromDomainFailedWebhook converts from the queue model. Position keeps the
// queue order stable across reloads.
func FromDomainFailedWebhook(w *webhook.FailedWebhook, position int) *FailedWebhookEntity {
	return &FailedWebhookEntity{
		ID:           w.ID,
		Position:     position,
		EventType:    w.EventType,
		EventID:      w.EventID,
		Payload:      w.Payload,
		Error:        w.Error,
		RetryCount:   w.RetryCount,
		FirstAttempt: w.FirstAttempt,
		LastAttempt:  w.LastAttempt,
		NextRetryAt:  w.NextRetryAt,
	}
}
