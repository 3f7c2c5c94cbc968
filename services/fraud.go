package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"rewards-service/cache"
	"rewards-service/models"
	"rewards-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditPublisher is the fire-and-forget telemetry sink (kafka in
// production). Failures are logged and dropped.
type AuditPublisher interface {
	Publish(event models.AuditEvent) error
}

// FraudChecker recomputes the expected charge total from authoritative
// catalog prices and records a signal when the processor-declared total
// drifts past the tolerance. Detection only: settlement is never blocked or
// reversed, the funds are already captured.
type FraudChecker struct {
	catalog   CatalogClient
	prices    *cache.TTLCache
	orders    repository.OrderStore
	audit     AuditPublisher
	tolerance int64
	logger    *zap.Logger
}

func NewFraudChecker(catalog CatalogClient, prices *cache.TTLCache, orders repository.OrderStore, audit AuditPublisher, tolerance int64, logger *zap.Logger) *FraudChecker {
	return &FraudChecker{
		catalog:   catalog,
		prices:    prices,
		orders:    orders,
		audit:     audit,
		tolerance: tolerance,
		logger:    logger,
	}
}

// Revalidate never returns an error and never mutates the order; everything
// here is an audit side channel.
func (f *FraudChecker) Revalidate(ctx context.Context, order *models.Order) {
	if order.CartSnapshot == nil {
		return
	}

	var items []models.CartItem
	if err := json.Unmarshal([]byte(*order.CartSnapshot), &items); err != nil {
		f.logger.Warn("Unparseable cart snapshot, skipping fraud revalidation",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return
	}
	if len(items) == 0 {
		return
	}

	serverTotal := int64(0)
	for _, item := range items {
		price, err := f.unitPrice(ctx, item.ProductID)
		if err != nil {
			f.logger.Warn("Catalog price lookup failed, skipping fraud revalidation",
				zap.String("order_id", order.ID.String()),
				zap.String("product_id", item.ProductID.String()),
				zap.Error(err),
			)
			return
		}
		serverTotal += price * int64(item.Quantity)
	}

	delta := order.AmountTotal - serverTotal
	if delta < 0 {
		delta = -delta
	}
	if delta <= f.tolerance {
		return
	}

	details := fmt.Sprintf(`{"declared_total":%d,"server_total":%d,"item_count":%d}`,
		order.AmountTotal, serverTotal, len(items))
	signal := &models.FraudSignal{
		ID:            uuid.New(),
		OrderID:       order.ID,
		SessionID:     order.ExternalSessionID,
		DeclaredTotal: order.AmountTotal,
		ServerTotal:   serverTotal,
		Details:       &details,
	}
	if err := f.orders.SaveFraudSignal(ctx, signal); err != nil {
		f.logger.Error("Failed to persist fraud signal",
			zap.String("order_id", order.ID.String()),
			zap.Bool("reconciliation_required", true),
			zap.Error(err),
		)
	}

	f.logger.Warn("Charge total mismatch recorded",
		zap.String("order_id", order.ID.String()),
		zap.Int64("declared_total", order.AmountTotal),
		zap.Int64("server_total", serverTotal),
	)

	if f.audit != nil {
		if err := f.audit.Publish(models.AuditEvent{
			Kind:    "fraud_signal",
			OrderID: order.ID.String(),
			Detail: map[string]string{
				"declared_total": strconv.FormatInt(order.AmountTotal, 10),
				"server_total":   strconv.FormatInt(serverTotal, 10),
			},
			Timestamp: time.Now().UTC(),
		}); err != nil {
			f.logger.Warn("Audit event publish failed", zap.Error(err))
		}
	}
}

func (f *FraudChecker) unitPrice(ctx context.Context, productID uuid.UUID) (int64, error) {
	key := productID.String()
	if f.prices != nil {
		if cached, ok := f.prices.Get(key); ok {
			return cached.(int64), nil
		}
	}
	price, err := f.catalog.UnitPrice(ctx, productID)
	if err != nil {
		return 0, err
	}
	if f.prices != nil {
		f.prices.Set(key, price)
	}
	return price, nil
}
