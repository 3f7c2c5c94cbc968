package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"rewards-service/models"
	awspkg "rewards-service/pkg/aws"
	"rewards-service/repository"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrIllegalTransition = errors.New("illegal order status transition")

// legalTransitions is the fulfilment state machine. Payment status moves
// independently, driven only by processor notifications.
var legalTransitions = map[string][]string{
	models.OrderStatusConfirmed: {models.OrderStatusPreparing, models.OrderStatusCancelled},
	models.OrderStatusPreparing: {models.OrderStatusReady, models.OrderStatusCancelled},
	models.OrderStatusReady:     {models.OrderStatusDelivered, models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:   {models.OrderStatusDelivered},
}

// OrderService applies settlement notifications to order state and the
// financial ledger. All handlers are idempotent: the replay guard keyed on
// the processor's event id sits in front of them, and the unique session
// constraint backstops order creation.
type OrderService struct {
	orders   repository.OrderStore
	fraud    *FraudChecker
	sns      awspkg.SNSPublisher
	topicArn string
	currency string
	logger   *zap.Logger
}

func NewOrderService(orders repository.OrderStore, fraud *FraudChecker, sns awspkg.SNSPublisher, topicArn, currency string, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		fraud:    fraud,
		sns:      sns,
		topicArn: topicArn,
		currency: currency,
		logger:   logger,
	}
}

// HandleCheckoutCompleted creates the order for a successful settlement.
// Exactly one order exists per checkout session; a replayed event that slips
// past the replay guard dies on the unique session index and is a no-op.
func (s *OrderService) HandleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID, err := uuid.Parse(sess.Metadata["user_id"])
	if err != nil {
		return errors.New("checkout session missing user_id metadata")
	}

	chargeRef := ""
	if sess.PaymentIntent != nil {
		chargeRef = sess.PaymentIntent.ID
	}

	currency := s.currency
	if sess.Currency != "" {
		currency = string(sess.Currency)
	}

	order := &models.Order{
		ID:                uuid.New(),
		ExternalSessionID: sess.ID,
		UserID:            userID,
		ChargeRef:         chargeRef,
		AmountTotal:       sess.AmountTotal,
		Currency:          currency,
		PaymentStatus:     models.PaymentStatusPaid,
		Status:            models.OrderStatusConfirmed,
	}
	if cart, ok := sess.Metadata["cart"]; ok {
		order.CartSnapshot = &cart
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.logger.Info("Order already exists for session, skipping",
				zap.String("session_id", sess.ID),
			)
			return nil
		}
		return err
	}

	// The order row is authoritative; a failed ledger insert is logged for
	// reconciliation against the processor's ledger, not re-raised.
	s.appendTransaction(ctx, order.ID, models.TransactionTypePayment, order.AmountTotal, currency)

	if s.fraud != nil {
		s.fraud.Revalidate(ctx, order)
	}

	s.publishPaymentEvent(ctx, models.PaymentEvent{
		Type:      "payment_succeeded",
		OrderID:   order.ID.String(),
		UserID:    userID.String(),
		SessionID: sess.ID,
		Amount:    order.AmountTotal,
		Currency:  currency,
		Timestamp: time.Now().UTC(),
	})

	return nil
}

// HandlePaymentFailed marks an existing order failed. No order means the
// customer abandoned before confirmation and there is nothing to do.
func (s *OrderService) HandlePaymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error {
	order, err := s.orders.FindByChargeRef(ctx, pi.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info("Payment failure for unknown charge, no order to update",
				zap.String("payment_intent_id", pi.ID),
			)
			return nil
		}
		return err
	}
	return s.orders.UpdateOrder(ctx, order.ID, map[string]interface{}{
		"payment_status": models.PaymentStatusFailed,
	})
}

// HandleRefund flips the order to refunded and appends the negative
// movement. Lookup uses the charge reference captured at settlement.
func (s *OrderService) HandleRefund(ctx context.Context, ch *stripe.Charge) error {
	chargeRef := ch.ID
	if ch.PaymentIntent != nil {
		chargeRef = ch.PaymentIntent.ID
	}
	order, err := s.orders.FindByChargeRef(ctx, chargeRef)
	if err != nil {
		return err
	}

	if err := s.orders.UpdateOrder(ctx, order.ID, map[string]interface{}{
		"payment_status": models.PaymentStatusRefunded,
	}); err != nil {
		return err
	}

	s.appendTransaction(ctx, order.ID, models.TransactionTypeRefund, -ch.AmountRefunded, order.Currency)

	s.publishPaymentEvent(ctx, models.PaymentEvent{
		Type:      "payment_refunded",
		OrderID:   order.ID.String(),
		UserID:    order.UserID.String(),
		Amount:    -ch.AmountRefunded,
		Currency:  order.Currency,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// HandleDisputeCreated records the processor withholding the disputed funds.
func (s *OrderService) HandleDisputeCreated(ctx context.Context, d *stripe.Dispute) error {
	order, err := s.findDisputedOrder(ctx, d)
	if err != nil {
		return err
	}
	if err := s.orders.UpdateOrder(ctx, order.ID, map[string]interface{}{
		"payment_status": models.PaymentStatusDisputed,
	}); err != nil {
		return err
	}
	s.appendTransaction(ctx, order.ID, models.TransactionTypeDispute, -d.Amount, order.Currency)
	return nil
}

// HandleDisputeClosed reverts to paid on a win (funds returned by the
// processor) or settles the loss.
func (s *OrderService) HandleDisputeClosed(ctx context.Context, d *stripe.Dispute) error {
	order, err := s.findDisputedOrder(ctx, d)
	if err != nil {
		return err
	}

	switch d.Status {
	case stripe.DisputeStatusWon:
		if err := s.orders.UpdateOrder(ctx, order.ID, map[string]interface{}{
			"payment_status": models.PaymentStatusPaid,
		}); err != nil {
			return err
		}
		s.appendTransaction(ctx, order.ID, models.TransactionTypeDisputeWon, d.Amount, order.Currency)
	case stripe.DisputeStatusLost:
		if err := s.orders.UpdateOrder(ctx, order.ID, map[string]interface{}{
			"payment_status": models.PaymentStatusLostDispute,
		}); err != nil {
			return err
		}
		s.appendTransaction(ctx, order.ID, models.TransactionTypeDisputeLost, -d.Amount, order.Currency)
	default:
		s.logger.Info("Dispute closed with non-terminal status, ignoring",
			zap.String("dispute_id", d.ID),
			zap.String("status", string(d.Status)),
		)
	}
	return nil
}

func (s *OrderService) findDisputedOrder(ctx context.Context, d *stripe.Dispute) (*models.Order, error) {
	chargeRef := ""
	if d.PaymentIntent != nil {
		chargeRef = d.PaymentIntent.ID
	} else if d.Charge != nil {
		chargeRef = d.Charge.ID
	}
	return s.orders.FindByChargeRef(ctx, chargeRef)
}

// TransitionStatus applies a staff-driven fulfilment transition after
// validating it against the state machine.
func (s *OrderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, next string) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, candidate := range legalTransitions[order.Status] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrIllegalTransition
	}

	updates := map[string]interface{}{"status": next}
	now := time.Now()
	switch next {
	case models.OrderStatusDelivered:
		updates["completed_at"] = &now
	case models.OrderStatusCancelled:
		updates["canceled_at"] = &now
	}
	if err := s.orders.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, err
	}
	order.Status = next
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// GetOrderBySession resolves an order from the processor's checkout session
// id, for support tooling reconciling against processor exports.
func (s *OrderService) GetOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	return s.orders.FindBySessionID(ctx, sessionID)
}

// Transactions returns the order's financial movements, oldest first.
func (s *OrderService) Transactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error) {
	return s.orders.ListTransactions(ctx, orderID)
}

func (s *OrderService) appendTransaction(ctx context.Context, orderID uuid.UUID, txType string, amount int64, currency string) {
	tx := &models.FinancialTransaction{
		ID:       uuid.New(),
		OrderID:  orderID,
		Type:     txType,
		Amount:   amount,
		Currency: currency,
	}
	if err := s.orders.AppendTransaction(ctx, tx); err != nil {
		s.logger.Error("Failed to append financial transaction",
			zap.String("order_id", orderID.String()),
			zap.String("type", txType),
			zap.Int64("amount", amount),
			zap.Bool("reconciliation_required", true),
			zap.Error(err),
		)
	}
}

// publishPaymentEvent fans the settlement out to SNS, best-effort. Delivery
// failure never fails the settlement.
func (s *OrderService) publishPaymentEvent(ctx context.Context, event models.PaymentEvent) {
	if s.sns == nil || s.topicArn == "" {
		return
	}
	payload, _ := json.Marshal(event)
	if err := s.sns.Publish(ctx, s.topicArn, payload); err != nil {
		s.logger.Error("Failed to publish payment event to SNS",
			zap.String("event_type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Payment event published to SNS",
		zap.String("event_type", event.Type),
		zap.String("order_id", event.OrderID),
	)
}
