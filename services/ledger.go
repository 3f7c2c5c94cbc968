package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rewards-service/models"
	"rewards-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidPoints       = errors.New("points must be positive")
)

// CreditIssuer converts a committed redemption into a spendable credit.
// Issue runs after the ledger transaction commits; a failure triggers a
// compensating correction entry rather than any edit of the original entry.
type CreditIssuer interface {
	Issue(ctx context.Context, accountID uuid.UUID, points int64, reference string) error
}

// NoopCreditIssuer is used when no credit backend is configured.
type NoopCreditIssuer struct{}

func (NoopCreditIssuer) Issue(ctx context.Context, accountID uuid.UUID, points int64, reference string) error {
	return nil
}

type AwardResult struct {
	PointsEarned int64  `json:"points_earned"`
	NewBalance   int64  `json:"new_balance"`
	NewLifetime  int64  `json:"new_lifetime"`
	Tier         string `json:"tier"`
	TierBefore   string `json:"tier_before"`
	TierChanged  bool   `json:"tier_changed"`
	Streak       int    `json:"streak"`
	WasDuplicate bool   `json:"was_duplicate"`
}

type RedeemResult struct {
	NewBalance   int64 `json:"new_balance"`
	WasDuplicate bool  `json:"was_duplicate"`
}

// LedgerService owns all loyalty balance mutation. Every operation runs as a
// single transaction under an exclusive lock on the account row, so
// concurrent awards and redemptions against one account serialize and the
// balance check can never race the balance write.
type LedgerService struct {
	store              repository.LedgerStore
	credits            CreditIssuer
	logger             *zap.Logger
	minorUnitsPerPoint int64
	now                func() time.Time
}

func NewLedgerService(store repository.LedgerStore, credits CreditIssuer, minorUnitsPerPoint int64, logger *zap.Logger) *LedgerService {
	if credits == nil {
		credits = NoopCreditIssuer{}
	}
	return &LedgerService{
		store:              store,
		credits:            credits,
		logger:             logger,
		minorUnitsPerPoint: minorUnitsPerPoint,
		now:                time.Now,
	}
}

// Award earns points for a purchase. Replays with the same idempotency key
// return the original outcome with WasDuplicate set and no new mutation.
func (s *LedgerService) Award(ctx context.Context, accountID uuid.UUID, amountMinor int64, idempotencyKey string, reference *string) (*AwardResult, error) {
	if idempotencyKey == "" {
		return nil, errors.New("idempotency key required")
	}

	var result *AwardResult
	err := s.store.WithAccountLock(ctx, accountID, func(tx repository.LedgerTx) error {
		account := tx.Account()

		prior, err := tx.FindEntryByIdempotencyKey(idempotencyKey)
		if err != nil {
			return err
		}
		if prior != nil {
			// Rebuilt from the entry itself, not the live account: operations
			// that landed since the original call must not leak into a replay.
			priorTier := TierForLifetime(prior.LifetimeAfter)
			result = &AwardResult{
				PointsEarned: prior.Amount,
				NewBalance:   prior.BalanceAfter,
				NewLifetime:  prior.LifetimeAfter,
				Tier:         priorTier,
				TierBefore:   prior.TierAtTime,
				TierChanged:  priorTier != prior.TierAtTime,
				Streak:       prior.StreakAtTime,
				WasDuplicate: true,
			}
			return nil
		}

		now := s.now()
		calc, err := CalculatePoints(amountMinor, s.minorUnitsPerPoint, account.Tier, account.Streak, account.LastActivity, now)
		if err != nil {
			return err
		}

		tierBefore := account.Tier
		newBalance := account.Balance + calc.PointsEarned
		newLifetime := account.LifetimeEarned + calc.PointsEarned
		newTier := TierForLifetime(newLifetime)

		entry := &models.LoyaltyLedgerEntry{
			ID:             uuid.New(),
			AccountID:      account.ID,
			EntryType:      models.EntryTypeEarn,
			Amount:         calc.PointsEarned,
			BalanceAfter:   newBalance,
			LifetimeAfter:  newLifetime,
			TierAtTime:     tierBefore,
			StreakAtTime:   calc.NewStreak,
			IdempotencyKey: idempotencyKey,
			Reference:      reference,
			CreatedAt:      now,
		}
		if err := s.appendChained(tx, entry); err != nil {
			return err
		}

		today := now.UTC().Truncate(24 * time.Hour)
		account.Balance = newBalance
		account.LifetimeEarned = newLifetime
		account.Tier = newTier
		account.Streak = calc.NewStreak
		account.LastActivity = &today
		if err := tx.SaveAccount(account); err != nil {
			return err
		}

		result = &AwardResult{
			PointsEarned: calc.PointsEarned,
			NewBalance:   newBalance,
			NewLifetime:  newLifetime,
			Tier:         newTier,
			TierBefore:   tierBefore,
			TierChanged:  newTier != tierBefore,
			Streak:       calc.NewStreak,
			WasDuplicate: false,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.TierChanged {
		s.logger.Info("Loyalty tier changed",
			zap.String("account_id", accountID.String()),
			zap.String("tier_before", result.TierBefore),
			zap.String("tier", result.Tier),
		)
	}
	return result, nil
}

// Redeem spends points. The balance check and the debit happen inside the
// same locked transaction; two concurrent redemptions cannot both pass the
// check against a stale balance. If the dependent credit issuance fails
// after commit, a correction entry restores the balance and the caller gets
// a definitive error.
func (s *LedgerService) Redeem(ctx context.Context, accountID uuid.UUID, points int64, idempotencyKey string, reference *string) (*RedeemResult, error) {
	if idempotencyKey == "" {
		return nil, errors.New("idempotency key required")
	}
	if points <= 0 {
		return nil, ErrInvalidPoints
	}

	var result *RedeemResult
	err := s.store.WithAccountLock(ctx, accountID, func(tx repository.LedgerTx) error {
		account := tx.Account()

		prior, err := tx.FindEntryByIdempotencyKey(idempotencyKey)
		if err != nil {
			return err
		}
		if prior != nil {
			result = &RedeemResult{NewBalance: prior.BalanceAfter, WasDuplicate: true}
			return nil
		}

		if points > account.Balance {
			return ErrInsufficientBalance
		}

		now := s.now()
		newBalance := account.Balance - points
		entry := &models.LoyaltyLedgerEntry{
			ID:             uuid.New(),
			AccountID:      account.ID,
			EntryType:      models.EntryTypeRedeem,
			Amount:         -points,
			BalanceAfter:   newBalance,
			LifetimeAfter:  account.LifetimeEarned,
			TierAtTime:     account.Tier,
			StreakAtTime:   account.Streak,
			IdempotencyKey: idempotencyKey,
			Reference:      reference,
			CreatedAt:      now,
		}
		if err := s.appendChained(tx, entry); err != nil {
			return err
		}

		account.Balance = newBalance
		if err := tx.SaveAccount(account); err != nil {
			return err
		}

		result = &RedeemResult{NewBalance: newBalance, WasDuplicate: false}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.WasDuplicate {
		return result, nil
	}

	ref := idempotencyKey
	if reference != nil {
		ref = *reference
	}
	if err := s.credits.Issue(ctx, accountID, points, ref); err != nil {
		s.logger.Error("Credit issuance failed after redemption committed, issuing correction",
			zap.String("account_id", accountID.String()),
			zap.Int64("points", points),
			zap.Error(err),
		)
		corr, corrErr := s.Correct(ctx, accountID, points, idempotencyKey, "credit issuance failed")
		if corrErr != nil {
			s.logger.Error("Correction failed after credit issuance failure",
				zap.String("account_id", accountID.String()),
				zap.String("idempotency_key", idempotencyKey),
				zap.Bool("reconciliation_required", true),
				zap.Error(corrErr),
			)
			return nil, fmt.Errorf("credit issuance failed and correction failed: %w", corrErr)
		}
		return nil, fmt.Errorf("credit issuance failed, redemption reversed (balance restored to %d): %w", corr.BalanceAfter, err)
	}

	return result, nil
}

// Correct appends a compensating entry reversing a prior operation whose
// dependent side effect failed. The original entry is never touched; the
// audit chain stays intact and the correction is itself idempotent via a key
// derived from the originating operation.
func (s *LedgerService) Correct(ctx context.Context, accountID uuid.UUID, amount int64, originKey, reason string) (*models.LoyaltyLedgerEntry, error) {
	correctionKey := "correction:" + originKey

	var corrected *models.LoyaltyLedgerEntry
	err := s.store.WithAccountLock(ctx, accountID, func(tx repository.LedgerTx) error {
		account := tx.Account()

		prior, err := tx.FindEntryByIdempotencyKey(correctionKey)
		if err != nil {
			return err
		}
		if prior != nil {
			corrected = prior
			return nil
		}

		newBalance := account.Balance + amount
		if newBalance < 0 {
			return ErrInsufficientBalance
		}

		now := s.now()
		entry := &models.LoyaltyLedgerEntry{
			ID:             uuid.New(),
			AccountID:      account.ID,
			EntryType:      models.EntryTypeCorrection,
			Amount:         amount,
			BalanceAfter:   newBalance,
			LifetimeAfter:  account.LifetimeEarned,
			TierAtTime:     account.Tier,
			StreakAtTime:   account.Streak,
			IdempotencyKey: correctionKey,
			Reference:      &originKey,
			Reason:         &reason,
			CreatedAt:      now,
		}
		if err := s.appendChained(tx, entry); err != nil {
			return err
		}

		account.Balance = newBalance
		if err := tx.SaveAccount(account); err != nil {
			return err
		}
		corrected = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return corrected, nil
}

// appendChained links the entry to the account's hash chain and writes it.
func (s *LedgerService) appendChained(tx repository.LedgerTx, entry *models.LoyaltyLedgerEntry) error {
	last, err := tx.LastEntry()
	if err != nil {
		return err
	}
	prevHash := ""
	if last != nil {
		prevHash = last.RowHash
	}
	entry.PrevHash = prevHash
	entry.RowHash = ComputeRowHash(prevHash, entry.AccountID, entry.Amount, entry.BalanceAfter, entry.CreatedAt)
	return tx.AppendEntry(entry)
}

// CreateAccount opens a fresh account at bronze with a zero balance.
func (s *LedgerService) CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error {
	return s.store.CreateAccount(ctx, account)
}

// GetAccount returns the cached account projection.
func (s *LedgerService) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.LoyaltyAccount, error) {
	return s.store.GetAccount(ctx, accountID)
}

// AccountByOwner resolves the account for callers that only know the owning
// user id.
func (s *LedgerService) AccountByOwner(ctx context.Context, ownerID uuid.UUID) (*models.LoyaltyAccount, error) {
	return s.store.GetAccountByOwner(ctx, ownerID)
}

// Ledger returns one page of entries, oldest first, for the audit view.
func (s *LedgerService) Ledger(ctx context.Context, accountID uuid.UUID, page, limit int) ([]models.LoyaltyLedgerEntry, int64, error) {
	return s.store.ListEntries(ctx, accountID, page, limit)
}

// VerifyLedger recomputes the account's full hash chain.
func (s *LedgerService) VerifyLedger(ctx context.Context, accountID uuid.UUID) error {
	const pageSize = 500
	var all []models.LoyaltyLedgerEntry
	for page := 1; ; page++ {
		entries, total, err := s.store.ListEntries(ctx, accountID, page, pageSize)
		if err != nil {
			return err
		}
		all = append(all, entries...)
		if int64(len(all)) >= total || len(entries) == 0 {
			break
		}
	}
	return VerifyChain(all)
}
