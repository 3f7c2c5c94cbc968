package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	WebhookEventLocked    = "locked"
	WebhookEventProcessed = "processed"
	WebhookEventSkipped   = "skipped"
	WebhookEventFailed    = "failed"
)

// WebhookEvent is the replay-guard log. Inserting a row claims the event;
// the unique index on EventID makes the claim atomic under concurrent
// redelivery. A row stuck in "locked" marks a crash between claim and
// completion and needs reconciliation, never a silent retry.
type WebhookEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventID     string     `gorm:"uniqueIndex;not null" json:"event_id"`
	Type        string     `gorm:"type:varchar(64);not null" json:"type"`
	Status      string     `gorm:"type:varchar(20);not null" json:"status"`
	Payload     *string    `gorm:"type:jsonb" json:"payload,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
