package services

import (
	"context"
	"errors"

	"rewards-service/models"
	"rewards-service/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReplayGuard deduplicates processor events. Acquire claims an event id with
// a single INSERT against the unique index; losing the race means the event
// was already claimed and must be acknowledged without reprocessing.
type ReplayGuard struct {
	store  repository.WebhookEventStore
	logger *zap.Logger
}

func NewReplayGuard(store repository.WebhookEventStore, logger *zap.Logger) *ReplayGuard {
	return &ReplayGuard{store: store, logger: logger}
}

// Acquire returns false when the event was already claimed. Any other
// storage failure propagates so the caller can decide how to respond.
func (g *ReplayGuard) Acquire(ctx context.Context, eventID, eventType string, payload []byte) (bool, error) {
	event := &models.WebhookEvent{
		EventID: eventID,
		Type:    eventType,
		Status:  models.WebhookEventLocked,
	}
	if len(payload) > 0 {
		p := string(payload)
		event.Payload = &p
	}

	err := g.store.Insert(ctx, event)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		g.logger.Info("Duplicate webhook event skipped",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
		)
		return false, nil
	}
	return false, err
}

func (g *ReplayGuard) MarkProcessed(ctx context.Context, eventID string) {
	g.markStatus(ctx, eventID, models.WebhookEventProcessed)
}

func (g *ReplayGuard) MarkSkipped(ctx context.Context, eventID string) {
	g.markStatus(ctx, eventID, models.WebhookEventSkipped)
}

// MarkFailed leaves an audit trail for events that were claimed but whose
// processing failed after the claim. These rows need reconciliation; the
// processor will not redeliver an event we acknowledged.
func (g *ReplayGuard) MarkFailed(ctx context.Context, eventID string) {
	g.markStatus(ctx, eventID, models.WebhookEventFailed)
}

func (g *ReplayGuard) markStatus(ctx context.Context, eventID, status string) {
	if err := g.store.MarkStatus(ctx, eventID, status); err != nil {
		g.logger.Error("Failed to update webhook event status",
			zap.String("event_id", eventID),
			zap.String("status", status),
			zap.Bool("reconciliation_required", true),
			zap.Error(err),
		)
	}
}
