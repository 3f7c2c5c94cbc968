package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment status values an order moves through. The fulfilment status
// lives in Order.Status and is orthogonal to these.
const (
	PaymentStatusPending     = "pending"
	PaymentStatusPaid        = "paid"
	PaymentStatusFailed      = "failed"
	PaymentStatusRefunded    = "refunded"
	PaymentStatusDisputed    = "disputed"
	PaymentStatusLostDispute = "lost_dispute"
)

const (
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	// ExternalSessionID is the processor's checkout session id. The unique
	// index is the final safety net against duplicate order creation if a
	// replayed settlement event ever slips past the replay guard.
	ExternalSessionID string    `gorm:"uniqueIndex;not null" json:"external_session_id"`
	UserID            uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	// ChargeRef is captured at settlement time so refund and dispute
	// notifications can be matched without a second processor lookup.
	ChargeRef     string     `gorm:"index" json:"charge_ref"`
	AmountTotal   int64      `gorm:"not null" json:"amount_total"` // minor units
	Currency      string     `gorm:"type:varchar(10);not null" json:"currency"`
	PaymentStatus string     `gorm:"type:varchar(20);not null" json:"payment_status"`
	Status        string     `gorm:"type:varchar(20);not null" json:"status"`
	CartSnapshot  *string    `gorm:"type:jsonb" json:"cart_snapshot,omitempty"`
	Metadata      *string    `gorm:"type:jsonb" json:"metadata,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CanceledAt    *time.Time `json:"canceled_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CartItem is one line of the cart snapshot stored on the order. Quantities
// and unit prices are as declared by the client at checkout; the fraud
// revalidator compares them against authoritative catalog prices.
type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"` // minor units, client-declared
}

const (
	TransactionTypePayment     = "payment"
	TransactionTypeRefund      = "refund"
	TransactionTypeDispute     = "dispute"
	TransactionTypeDisputeWon  = "dispute_won"
	TransactionTypeDisputeLost = "dispute_lost"
)

// FinancialTransaction is one append-only row per monetary event. Amount is
// signed; negative means funds leaving the business.
type FinancialTransaction struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID  uuid.UUID `gorm:"type:uuid;index;not null" json:"order_id"`
	Type     string    `gorm:"type:varchar(20);not null" json:"type"`
	Amount   int64     `gorm:"not null" json:"amount"`
	Currency string    `gorm:"type:varchar(10);not null" json:"currency"`
	Metadata *string   `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FraudSignal records a mismatch between the processor-declared charge total
// and the total recomputed from catalog prices. Detection only: settlement is
// never blocked or reversed, the funds are already captured.
type FraudSignal struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID       uuid.UUID `gorm:"type:uuid;index;not null" json:"order_id"`
	SessionID     string    `gorm:"index" json:"session_id"`
	DeclaredTotal int64     `gorm:"not null" json:"declared_total"`
	ServerTotal   int64     `gorm:"not null" json:"server_total"`
	Details       *string   `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
