package models

import "time"

// PaymentEvent is the message fanned out (best-effort) after a settlement
// notification has been applied, for downstream consumers such as
// notifications and analytics.
type PaymentEvent struct {
	Type      string    `json:"type"` // e.g. "payment_succeeded", "payment_refunded"
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	Amount    int64     `json:"amount"` // minor units
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"` // UTC
}

// AuditEvent is a fire-and-forget telemetry record (fraud signals,
// reconciliation faults). Delivery failures are logged and dropped; nothing
// correctness-critical may ever depend on this stream.
type AuditEvent struct {
	Kind      string            `json:"kind"`
	OrderID   string            `json:"order_id,omitempty"`
	AccountID string            `json:"account_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
