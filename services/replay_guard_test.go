package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rewards-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// memWebhookEventStore enforces the event_id unique constraint the way the
// database does: atomically at insert time.
type memWebhookEventStore struct {
	mu     sync.Mutex
	events map[string]*models.WebhookEvent
	insErr error
}

func newMemWebhookEventStore() *memWebhookEventStore {
	return &memWebhookEventStore{events: make(map[string]*models.WebhookEvent)}
}

func (s *memWebhookEventStore) Insert(ctx context.Context, event *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insErr != nil {
		return s.insErr
	}
	if _, exists := s.events[event.EventID]; exists {
		return gorm.ErrDuplicatedKey
	}
	stored := *event
	s.events[event.EventID] = &stored
	return nil
}

func (s *memWebhookEventStore) MarkStatus(ctx context.Context, eventID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	event.Status = status
	now := time.Now()
	event.ProcessedAt = &now
	return nil
}

func TestReplayGuard_FirstAcquireWins(t *testing.T) {
	store := newMemWebhookEventStore()
	guard := NewReplayGuard(store, zap.NewNop())
	ctx := context.Background()

	acquired, err := guard.Acquire(ctx, "evt_1", "checkout.session.completed", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = guard.Acquire(ctx, "evt_1", "checkout.session.completed", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, acquired, "redelivered event must not be reprocessed")
}

func TestReplayGuard_ConcurrentDeliverySingleWinner(t *testing.T) {
	store := newMemWebhookEventStore()
	guard := NewReplayGuard(store, zap.NewNop())
	ctx := context.Background()

	const n = 16
	results := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			acquired, err := guard.Acquire(ctx, "evt_race", "charge.refunded", nil)
			assert.NoError(t, err)
			results[i] = acquired
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, acquired := range results {
		if acquired {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent delivery may claim the event")
}

func TestReplayGuard_StoreFailurePropagates(t *testing.T) {
	store := newMemWebhookEventStore()
	store.insErr = errors.New("connection reset")
	guard := NewReplayGuard(store, zap.NewNop())

	acquired, err := guard.Acquire(context.Background(), "evt_2", "charge.refunded", nil)
	assert.Error(t, err)
	assert.False(t, acquired)
}

func TestReplayGuard_MarkProcessedUpdatesStatus(t *testing.T) {
	store := newMemWebhookEventStore()
	guard := NewReplayGuard(store, zap.NewNop())
	ctx := context.Background()

	_, err := guard.Acquire(ctx, "evt_3", "charge.refunded", nil)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookEventLocked, store.events["evt_3"].Status)

	guard.MarkProcessed(ctx, "evt_3")
	assert.Equal(t, models.WebhookEventProcessed, store.events["evt_3"].Status)
	assert.NotNil(t, store.events["evt_3"].ProcessedAt)
}
