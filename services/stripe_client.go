package services

import (
	"bytes"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

// EventVerifier authenticates inbound processor notifications. Implemented
// by StripeService and faked in tests.
type EventVerifier interface {
	ParseWebhook(r *http.Request) (stripe.Event, error)
}

type StripeService struct {
	WebhookKey string
}

func NewStripeService(webhookKey string) *StripeService {
	return &StripeService{WebhookKey: webhookKey}
}

// ParseWebhook verifies the Stripe-Signature header over the exact raw
// request bytes. The body must not be re-serialized before verification;
// ConstructEvent receives the payload as read off the wire.
func (s *StripeService) ParseWebhook(r *http.Request) (stripe.Event, error) {
	var event stripe.Event
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return event, err
	}
	r.Body = io.NopCloser(bytes.NewBuffer(payload))
	sigHeader := r.Header.Get("Stripe-Signature")
	return webhook.ConstructEvent(payload, sigHeader, s.WebhookKey)
}
