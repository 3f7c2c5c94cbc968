package controllers

import (
	"encoding/json"
	"net/http"

	"rewards-service/services"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

type WebhookController struct {
	Verifier services.EventVerifier
	Guard    *services.ReplayGuard
	Orders   *services.OrderService
	Logger   *zap.Logger
}

// StripeWebhook receives and dispatches processor webhook events.
//
// Response policy: 400 only for requests redelivery cannot fix (bad
// signature, malformed payload). Everything else — duplicates, unhandled
// event types, internal faults after the event was claimed — answers 200 so
// the processor stops redelivering; claimed-but-failed events are marked in
// the event log for reconciliation.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	event, err := wc.Verifier.ParseWebhook(c.Request)
	if err != nil {
		wc.Logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	wc.Logger.Info("Processing Stripe webhook",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
	)

	ctx := c.Request.Context()
	acquired, err := wc.Guard.Acquire(ctx, event.ID, string(event.Type), event.Data.Raw)
	if err != nil {
		// Responding 200 on a store fault avoids a redelivery storm, at the
		// price of masking the failure from the processor. The log line is
		// the mandatory pairing.
		wc.Logger.Error("Replay guard unavailable, acknowledging without processing",
			zap.String("event_id", event.ID),
			zap.Bool("reconciliation_required", true),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"status": "deferred"})
		return
	}
	if !acquired {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			wc.rejectMalformed(c, event.ID, "checkout session", err)
			return
		}
		wc.finish(c, event.ID, wc.Orders.HandleCheckoutCompleted(ctx, &sess))

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			wc.rejectMalformed(c, event.ID, "payment intent", err)
			return
		}
		wc.finish(c, event.ID, wc.Orders.HandlePaymentFailed(ctx, &pi))

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			wc.rejectMalformed(c, event.ID, "charge", err)
			return
		}
		wc.finish(c, event.ID, wc.Orders.HandleRefund(ctx, &ch))

	case "charge.dispute.created":
		var d stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &d); err != nil {
			wc.rejectMalformed(c, event.ID, "dispute", err)
			return
		}
		wc.finish(c, event.ID, wc.Orders.HandleDisputeCreated(ctx, &d))

	case "charge.dispute.closed":
		var d stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &d); err != nil {
			wc.rejectMalformed(c, event.ID, "dispute", err)
			return
		}
		wc.finish(c, event.ID, wc.Orders.HandleDisputeClosed(ctx, &d))

	default:
		wc.Logger.Info("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
		wc.Guard.MarkSkipped(ctx, event.ID)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}

func (wc *WebhookController) finish(c *gin.Context, eventID string, err error) {
	ctx := c.Request.Context()
	if err != nil {
		wc.Logger.Error("Webhook processing failed after claim",
			zap.String("event_id", eventID),
			zap.Bool("reconciliation_required", true),
			zap.Error(err),
		)
		wc.Guard.MarkFailed(ctx, eventID)
		c.JSON(http.StatusOK, gin.H{"status": "fault"})
		return
	}
	wc.Guard.MarkProcessed(ctx, eventID)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (wc *WebhookController) rejectMalformed(c *gin.Context, eventID, what string, err error) {
	wc.Logger.Error("Failed to unmarshal "+what, zap.String("event_id", eventID), zap.Error(err))
	wc.Guard.MarkFailed(c.Request.Context(), eventID)
	c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
}
