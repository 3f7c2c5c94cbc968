package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"rewards-service/models"
	"rewards-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeVerifier struct {
	event stripe.Event
	err   error
}

func (f *fakeVerifier) ParseWebhook(r *http.Request) (stripe.Event, error) {
	return f.event, f.err
}

type stubEventStore struct {
	mu     sync.Mutex
	events map[string]string // event_id -> status
}

func newStubEventStore() *stubEventStore {
	return &stubEventStore{events: make(map[string]string)}
}

func (s *stubEventStore) Insert(ctx context.Context, event *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[event.EventID]; exists {
		return gorm.ErrDuplicatedKey
	}
	s.events[event.EventID] = event.Status
	return nil
}

func (s *stubEventStore) MarkStatus(ctx context.Context, eventID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = status
	return nil
}

type stubOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order // keyed by session id
}

func newStubOrderStore() *stubOrderStore {
	return &stubOrderStore{orders: make(map[string]*models.Order)}
}

func (s *stubOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ExternalSessionID]; exists {
		return gorm.ErrDuplicatedKey
	}
	stored := *order
	s.orders[order.ExternalSessionID] = &stored
	return nil
}

func (s *stubOrderStore) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[sessionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *stubOrderStore) FindByChargeRef(ctx context.Context, chargeRef string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrderStore) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (s *stubOrderStore) AppendTransaction(ctx context.Context, tx *models.FinancialTransaction) error {
	return nil
}

func (s *stubOrderStore) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error) {
	return nil, nil
}

func (s *stubOrderStore) SaveFraudSignal(ctx context.Context, signal *models.FraudSignal) error {
	return nil
}

func newWebhookRouter(verifier services.EventVerifier, eventStore *stubEventStore, orderStore *stubOrderStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	wc := &WebhookController{
		Verifier: verifier,
		Guard:    services.NewReplayGuard(eventStore, logger),
		Orders:   services.NewOrderService(orderStore, nil, nil, "", "usd", logger),
		Logger:   logger,
	}
	r := gin.New()
	r.POST("/stripe/webhook", wc.StripeWebhook)
	return r
}

func postWebhook(r *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func checkoutEvent(t *testing.T, eventID, sessionID string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":           sessionID,
		"amount_total": 4200,
		"currency":     "usd",
		"metadata":     map[string]string{"user_id": uuid.NewString()},
		"payment_intent": map[string]interface{}{
			"id": "pi_1",
		},
	})
	require.NoError(t, err)
	return stripe.Event{
		ID:   eventID,
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestStripeWebhook_BadSignatureRejected(t *testing.T) {
	r := newWebhookRouter(&fakeVerifier{err: errors.New("bad signature")}, newStubEventStore(), newStubOrderStore())

	w := postWebhook(r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhook_CheckoutCreatesOrder(t *testing.T) {
	eventStore := newStubEventStore()
	orderStore := newStubOrderStore()
	r := newWebhookRouter(&fakeVerifier{event: checkoutEvent(t, "evt_1", "cs_1")}, eventStore, orderStore)

	w := postWebhook(r)
	assert.Equal(t, http.StatusOK, w.Code)

	order, err := orderStore.FindBySessionID(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, models.WebhookEventProcessed, eventStore.events["evt_1"])
}

func TestStripeWebhook_RedeliveryIsDuplicate(t *testing.T) {
	eventStore := newStubEventStore()
	orderStore := newStubOrderStore()
	r := newWebhookRouter(&fakeVerifier{event: checkoutEvent(t, "evt_1", "cs_1")}, eventStore, orderStore)

	first := postWebhook(r)
	assert.Equal(t, http.StatusOK, first.Code)

	second := postWebhook(r)
	assert.Equal(t, http.StatusOK, second.Code, "redelivery must be acknowledged, not retried")
	assert.Contains(t, second.Body.String(), "duplicate")
	assert.Len(t, orderStore.orders, 1)
}

func TestStripeWebhook_UnhandledTypeAcknowledged(t *testing.T) {
	eventStore := newStubEventStore()
	event := stripe.Event{
		ID:   "evt_2",
		Type: "customer.created",
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	r := newWebhookRouter(&fakeVerifier{event: event}, eventStore, newStubOrderStore())

	w := postWebhook(r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.WebhookEventSkipped, eventStore.events["evt_2"])
}

func TestStripeWebhook_MalformedPayloadRejected(t *testing.T) {
	eventStore := newStubEventStore()
	event := stripe.Event{
		ID:   "evt_3",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: json.RawMessage(`not-json`)},
	}
	r := newWebhookRouter(&fakeVerifier{event: event}, eventStore, newStubOrderStore())

	w := postWebhook(r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.WebhookEventFailed, eventStore.events["evt_3"])
}

func TestStripeWebhook_InternalFaultStillAcknowledged(t *testing.T) {
	eventStore := newStubEventStore()
	// missing user metadata makes the order handler fail after the claim
	raw, _ := json.Marshal(map[string]interface{}{"id": "cs_1", "metadata": map[string]string{}})
	event := stripe.Event{
		ID:   "evt_4",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
	r := newWebhookRouter(&fakeVerifier{event: event}, eventStore, newStubOrderStore())

	w := postWebhook(r)
	assert.Equal(t, http.StatusOK, w.Code, "internal faults must not trigger redelivery")
	assert.Equal(t, models.WebhookEventFailed, eventStore.events["evt_4"])
}
