package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"rewards-service/models"

	"github.com/google/uuid"
)

// ComputeRowHash derives a ledger entry's hash from the previous entry's
// hash and the entry's own fields. The genesis entry uses an empty prevHash.
// created_at is canonicalized to UTC and truncated to microseconds, the
// precision a timestamptz column stores, so the hash survives a storage
// round-trip of a nanosecond-precision time.Time.
func ComputeRowHash(prevHash string, accountID uuid.UUID, amount, balanceAfter int64, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte("|"))
	h.Write([]byte(accountID.String()))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(amount, 10)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatInt(balanceAfter, 10)))
	h.Write([]byte("|"))
	h.Write([]byte(createdAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain recomputes every hash in account order and reports the index
// of the first entry whose stored hash or link does not match. Entries must
// be passed oldest first.
func VerifyChain(entries []models.LoyaltyLedgerEntry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("chain broken at entry %d: prev_hash mismatch", i)
		}
		want := ComputeRowHash(prev, e.AccountID, e.Amount, e.BalanceAfter, e.CreatedAt)
		if e.RowHash != want {
			return fmt.Errorf("chain broken at entry %d: row_hash mismatch", i)
		}
		prev = e.RowHash
	}
	return nil
}
