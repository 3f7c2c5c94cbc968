package repository

import (
	"context"

	"rewards-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderStore persists orders and their append-only financial transactions.
// CreateOrder relies on the unique index on external_session_id and returns
// gorm.ErrDuplicatedKey when a settlement event is replayed past the guard.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	FindByChargeRef(ctx context.Context, chargeRef string) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	AppendTransaction(ctx context.Context, tx *models.FinancialTransaction) error
	ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error)
	SaveFraudSignal(ctx context.Context, signal *models.FraudSignal) error
}

type gormOrderStore struct {
	db *gorm.DB
}

func NewGormOrderStore(db *gorm.DB) OrderStore {
	return &gormOrderStore{db: db}
}

func (r *gormOrderStore) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *gormOrderStore) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("external_session_id = ?", sessionID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderStore) FindByChargeRef(ctx context.Context, chargeRef string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("charge_ref = ?", chargeRef).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderStore) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *gormOrderStore) AppendTransaction(ctx context.Context, tx *models.FinancialTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *gormOrderStore) ListTransactions(ctx context.Context, orderID uuid.UUID) ([]models.FinancialTransaction, error) {
	var txs []models.FinancialTransaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *gormOrderStore) SaveFraudSignal(ctx context.Context, signal *models.FraudSignal) error {
	return r.db.WithContext(ctx).Create(signal).Error
}
