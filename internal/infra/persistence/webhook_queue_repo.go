package persistence

import (
	"context"
	"fmt"

	"github.com/vpio/server/internal/infra/persistence/entity"
	"github.com/vpio/server/internal/module/webhook"
	"gorm.io/gorm"
)

// WebhookQueueRepository implements webhook.QueueStore on a SQL table.
type WebhookQueueRepository struct {
	db *gorm.DB
}

// NewWebhookQueueRepository creates a new webhook queue repository.
func NewWebhookQueueRepository(db *gorm.DB) *WebhookQueueRepository {
	return &WebhookQueueRepository{db: db}
}

// AutoMigrate creates or updates the failed_webhooks table.
func (r *WebhookQueueRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&entity.FailedWebhookEntity{})
}

func (r *WebhookQueueRepository) Load(ctx context.Context) ([]*webhook.FailedWebhook, error) {
	var entities []*entity.FailedWebhookEntity
	if err := r.db.WithContext(ctx).Order("position ASC").Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("load failed webhooks: %w", err)
	}

	list := make([]*webhook.FailedWebhook, len(entities))
	for i, ent := range entities {
		list[i] = ent.ToDomain()
	}
	return list, nil
}

// Save replaces the table contents in one transaction.
func (r *WebhookQueueRepository) Save(ctx context.Context, list []*webhook.FailedWebhook) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entity.FailedWebhookEntity{}).Error; err != nil {
			return fmt.Errorf("clear failed webhooks: %w", err)
		}
		if len(list) == 0 {
			return nil
		}

		entities := make([]*entity.FailedWebhookEntity, len(list))
		for i, w := range list {
			entities[i] = entity.FromDomainFailedWebhook(w, i)
		}
		if err := tx.Create(&entities).Error; err != nil {
			return fmt.Errorf("save failed webhooks: %w", err)
		}
		return nil
	})
}

var _ webhook.QueueStore = (*WebhookQueueRepository)(nil)
