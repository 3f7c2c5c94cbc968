package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

const (
	EntryTypeEarn       = "earn"
	EntryTypeRedeem     = "redeem"
	EntryTypeCorrection = "correction"
)

// LoyaltyAccount caches a projection of the ledger. Balance and
// LifetimeEarned are derived from the entries and are updated inside the
// same locked transaction that appends each entry; the ledger is the source
// of truth.
type LoyaltyAccount struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID        uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null" json:"owner_id"`
	Balance        int64      `gorm:"not null;default:0" json:"balance"`
	LifetimeEarned int64      `gorm:"not null;default:0" json:"lifetime_earned"`
	Tier           string     `gorm:"type:varchar(20);not null;default:'bronze'" json:"tier"`
	Streak         int        `gorm:"not null;default:0" json:"streak"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// LoyaltyLedgerEntry is append-only and immutable. Each entry hashes the
// previous entry's RowHash into its own, so any retroactive edit breaks
// every later hash in the account's chain.
type LoyaltyLedgerEntry struct {
	ID uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	// Seq is a bigserial assigned at insert. It is the chain order: two
	// entries can share a created_at microsecond, seq never collides.
	Seq           int64     `gorm:"autoIncrement;uniqueIndex" json:"seq"`
	AccountID     uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_account_idem" json:"account_id"`
	EntryType     string    `gorm:"type:varchar(20);not null" json:"entry_type"`
	Amount        int64     `gorm:"not null" json:"amount"` // signed
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	LifetimeAfter int64     `gorm:"not null" json:"lifetime_after"`
	TierAtTime    string    `gorm:"type:varchar(20);not null" json:"tier_at_time"`
	StreakAtTime  int       `gorm:"not null" json:"streak_at_time"`
	// IdempotencyKey is unique per account, giving each logical operation
	// at most one effect no matter how often it is retried.
	IdempotencyKey string    `gorm:"not null;uniqueIndex:idx_account_idem" json:"idempotency_key"`
	Reference      *string   `json:"reference,omitempty"`
	Reason         *string   `json:"reason,omitempty"`
	PrevHash       string    `gorm:"type:varchar(64);not null" json:"prev_hash"`
	RowHash        string    `gorm:"type:varchar(64);not null" json:"row_hash"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
