package services

import (
	"context"
	"errors"
	"sync"

	"rewards-service/models"
	"rewards-service/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memLedgerStore is an in-memory LedgerStore. A per-account mutex stands in
// for the database row lock, giving the same serialization the gorm
// implementation gets from SELECT ... FOR UPDATE.
type memLedgerStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.LoyaltyAccount
	entries  map[uuid.UUID][]models.LoyaltyLedgerEntry
	locks    map[uuid.UUID]*sync.Mutex
}

func newMemLedgerStore() *memLedgerStore {
	return &memLedgerStore{
		accounts: make(map[uuid.UUID]*models.LoyaltyAccount),
		entries:  make(map[uuid.UUID][]models.LoyaltyLedgerEntry),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *memLedgerStore) accountLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locks[id]; !ok {
		s.locks[id] = &sync.Mutex{}
	}
	return s.locks[id]
}

type memLedgerTx struct {
	store   *memLedgerStore
	account *models.LoyaltyAccount
	// staged writes, applied only if fn returns nil
	newEntries []models.LoyaltyLedgerEntry
	saved      *models.LoyaltyAccount
}

func (s *memLedgerStore) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(tx repository.LedgerTx) error) error {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	stored, ok := s.accounts[accountID]
	s.mu.Unlock()
	if !ok {
		return gorm.ErrRecordNotFound
	}

	snapshot := *stored
	tx := &memLedgerTx{store: s, account: &snapshot}
	if err := fn(tx); err != nil {
		return err // rolled back: staged writes dropped
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[accountID] = append(s.entries[accountID], tx.newEntries...)
	if tx.saved != nil {
		saved := *tx.saved
		s.accounts[accountID] = &saved
	}
	return nil
}

func (t *memLedgerTx) Account() *models.LoyaltyAccount { return t.account }

func (t *memLedgerTx) FindEntryByIdempotencyKey(key string) (*models.LoyaltyLedgerEntry, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, e := range t.store.entries[t.account.ID] {
		if e.IdempotencyKey == key {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (t *memLedgerTx) LastEntry() (*models.LoyaltyLedgerEntry, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	entries := t.store.entries[t.account.ID]
	if n := len(entries); n > 0 {
		entry := entries[n-1]
		return &entry, nil
	}
	return nil, nil
}

func (t *memLedgerTx) AppendEntry(entry *models.LoyaltyLedgerEntry) error {
	t.newEntries = append(t.newEntries, *entry)
	return nil
}

func (t *memLedgerTx) SaveAccount(account *models.LoyaltyAccount) error {
	saved := *account
	t.saved = &saved
	return nil
}

func (s *memLedgerStore) CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.OwnerID == account.OwnerID {
			return gorm.ErrDuplicatedKey
		}
	}
	stored := *account
	s.accounts[account.ID] = &stored
	return nil
}

func (s *memLedgerStore) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *memLedgerStore) GetAccountByOwner(ctx context.Context, ownerID uuid.UUID) (*models.LoyaltyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.OwnerID == ownerID {
			copied := *account
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *memLedgerStore) ListEntries(ctx context.Context, accountID uuid.UUID, page, limit int) ([]models.LoyaltyLedgerEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[accountID]
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]models.LoyaltyLedgerEntry, end-start)
	copy(out, all[start:end])
	return out, total, nil
}

// failingCreditIssuer simulates a credit backend outage.
type failingCreditIssuer struct {
	calls int
}

func (f *failingCreditIssuer) Issue(ctx context.Context, accountID uuid.UUID, points int64, reference string) error {
	f.calls++
	return errors.New("credit backend unavailable")
}
