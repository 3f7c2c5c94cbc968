package repository

import (
	"context"
	"time"

	"rewards-service/models"

	"gorm.io/gorm"
)

// WebhookEventStore is the replay-guard log. Insert must be a single atomic
// claim: a duplicate event id fails with gorm.ErrDuplicatedKey rather than
// being checked first and inserted after.
type WebhookEventStore interface {
	Insert(ctx context.Context, event *models.WebhookEvent) error
	MarkStatus(ctx context.Context, eventID, status string) error
}

type gormWebhookEventStore struct {
	db *gorm.DB
}

func NewGormWebhookEventStore(db *gorm.DB) WebhookEventStore {
	return &gormWebhookEventStore{db: db}
}

func (r *gormWebhookEventStore) Insert(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormWebhookEventStore) MarkStatus(ctx context.Context, eventID, status string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       status,
			"processed_at": &now,
		}).Error
}
