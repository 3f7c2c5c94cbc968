package repository

import (
	"context"

	"rewards-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerTx is the view of one account's ledger inside a locked transaction.
// Every method operates under the exclusive lock taken by WithAccountLock.
type LedgerTx interface {
	Account() *models.LoyaltyAccount
	FindEntryByIdempotencyKey(key string) (*models.LoyaltyLedgerEntry, error)
	LastEntry() (*models.LoyaltyLedgerEntry, error)
	AppendEntry(entry *models.LoyaltyLedgerEntry) error
	SaveAccount(account *models.LoyaltyAccount) error
}

// LedgerStore serializes all mutation of a loyalty account. WithAccountLock
// begins a transaction, takes an exclusive row lock on the account, and runs
// fn; any error rolls the whole transaction back. Concurrent calls against
// the same account queue on the lock, calls against different accounts do
// not block each other.
type LedgerStore interface {
	WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(tx LedgerTx) error) error
	CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error
	GetAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error)
	GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*models.LoyaltyAccount, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, page, limit int) ([]models.LoyaltyLedgerEntry, int64, error)
}

type gormLedgerStore struct {
	db *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) LedgerStore {
	return &gormLedgerStore{db: db}
}

type gormLedgerTx struct {
	tx      *gorm.DB
	account *models.LoyaltyAccount
}

func (r *gormLedgerStore) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(tx LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.LoyaltyAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", accountID).
			First(&account).Error; err != nil {
			return err
		}
		return fn(&gormLedgerTx{tx: tx, account: &account})
	})
}

func (t *gormLedgerTx) Account() *models.LoyaltyAccount {
	return t.account
}

func (t *gormLedgerTx) FindEntryByIdempotencyKey(key string) (*models.LoyaltyLedgerEntry, error) {
	var entry models.LoyaltyLedgerEntry
	err := t.tx.Where("account_id = ? AND idempotency_key = ?", t.account.ID, key).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *gormLedgerTx) LastEntry() (*models.LoyaltyLedgerEntry, error) {
	var entry models.LoyaltyLedgerEntry
	err := t.tx.Where("account_id = ?", t.account.ID).
		Order("seq DESC").
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *gormLedgerTx) AppendEntry(entry *models.LoyaltyLedgerEntry) error {
	return t.tx.Create(entry).Error
}

func (t *gormLedgerTx) SaveAccount(account *models.LoyaltyAccount) error {
	return t.tx.Save(account).Error
}

func (r *gormLedgerStore) CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *gormLedgerStore) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	if err := r.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormLedgerStore) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// ListEntries returns one page of the account's ledger, oldest first so the
// hash chain can be verified in order by external auditors. Ordering is by
// insert sequence, not created_at, so entries sharing a microsecond cannot
// swap places.
func (r *gormLedgerStore) ListEntries(ctx context.Context, accountID uuid.UUID, page, limit int) ([]models.LoyaltyLedgerEntry, int64, error) {
	var entries []models.LoyaltyLedgerEntry
	var total int64

	query := r.db.WithContext(ctx).
		Model(&models.LoyaltyLedgerEntry{}).
		Where("account_id = ?", accountID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).
		Limit(limit).
		Order("seq ASC").
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
