package services

import (
	"testing"
	"time"

	"rewards-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, accountID uuid.UUID, amounts []int64) []models.LoyaltyLedgerEntry {
	t.Helper()
	entries := make([]models.LoyaltyLedgerEntry, 0, len(amounts))
	prev := ""
	balance := int64(0)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, amount := range amounts {
		balance += amount
		createdAt := base.Add(time.Duration(i) * time.Minute)
		entry := models.LoyaltyLedgerEntry{
			ID:           uuid.New(),
			AccountID:    accountID,
			Amount:       amount,
			BalanceAfter: balance,
			PrevHash:     prev,
			CreatedAt:    createdAt,
		}
		entry.RowHash = ComputeRowHash(prev, accountID, amount, balance, createdAt)
		prev = entry.RowHash
		entries = append(entries, entry)
	}
	return entries
}

func TestComputeRowHash_Deterministic(t *testing.T) {
	accountID := uuid.New()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	h1 := ComputeRowHash("", accountID, 100, 100, at)
	h2 := ComputeRowHash("", accountID, 100, 100, at)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestComputeRowHash_SensitiveToEveryField(t *testing.T) {
	accountID := uuid.New()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	base := ComputeRowHash("prev", accountID, 100, 100, at)

	assert.NotEqual(t, base, ComputeRowHash("other", accountID, 100, 100, at))
	assert.NotEqual(t, base, ComputeRowHash("prev", uuid.New(), 100, 100, at))
	assert.NotEqual(t, base, ComputeRowHash("prev", accountID, 101, 100, at))
	assert.NotEqual(t, base, ComputeRowHash("prev", accountID, 100, 101, at))
	assert.NotEqual(t, base, ComputeRowHash("prev", accountID, 100, 100, at.Add(time.Microsecond)))
}

func TestComputeRowHash_SurvivesTimestamptzRoundTrip(t *testing.T) {
	accountID := uuid.New()
	// Written with full nanosecond precision, read back with the microsecond
	// precision a timestamptz column keeps.
	written := time.Date(2025, 6, 1, 10, 0, 0, 123456789, time.UTC)
	readBack := written.Truncate(time.Microsecond)

	assert.Equal(t,
		ComputeRowHash("", accountID, 10, 10, written),
		ComputeRowHash("", accountID, 10, 10, readBack),
	)
}

func TestVerifyChain_PassesAfterStorageRoundTrip(t *testing.T) {
	entries := buildChain(t, uuid.New(), []int64{100, 50, -30})
	for i := range entries {
		entries[i].CreatedAt = entries[i].CreatedAt.Add(789 * time.Nanosecond)
	}
	hashed := make([]models.LoyaltyLedgerEntry, len(entries))
	copy(hashed, entries)
	prev := ""
	for i := range hashed {
		hashed[i].PrevHash = prev
		hashed[i].RowHash = ComputeRowHash(prev, hashed[i].AccountID, hashed[i].Amount, hashed[i].BalanceAfter, hashed[i].CreatedAt)
		prev = hashed[i].RowHash
	}
	for i := range hashed {
		hashed[i].CreatedAt = hashed[i].CreatedAt.Truncate(time.Microsecond)
	}
	require.NoError(t, VerifyChain(hashed))
}

func TestComputeRowHash_TimezoneCanonicalized(t *testing.T) {
	accountID := uuid.New()
	utc := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	shifted := utc.In(time.FixedZone("X", 5*3600))

	assert.Equal(t,
		ComputeRowHash("", accountID, 10, 10, utc),
		ComputeRowHash("", accountID, 10, 10, shifted),
	)
}

func TestVerifyChain_ValidChain(t *testing.T) {
	entries := buildChain(t, uuid.New(), []int64{100, 50, -30, 25})
	require.NoError(t, VerifyChain(entries))
}

func TestVerifyChain_EmptyChain(t *testing.T) {
	require.NoError(t, VerifyChain(nil))
}

func TestVerifyChain_TamperedAmountBreaksChain(t *testing.T) {
	entries := buildChain(t, uuid.New(), []int64{100, 50, -30, 25})
	entries[1].Amount = 500 // retroactive edit

	err := VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestVerifyChain_RelinkingAfterTamperStillDetected(t *testing.T) {
	entries := buildChain(t, uuid.New(), []int64{100, 50, -30})
	// Attacker edits an amount and recomputes that entry's hash but cannot
	// fix the followers without rewriting the rest of the chain.
	entries[0].Amount = 1
	entries[0].RowHash = ComputeRowHash("", entries[0].AccountID, 1, entries[0].BalanceAfter, entries[0].CreatedAt)

	err := VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestVerifyChain_BrokenLinkDetected(t *testing.T) {
	entries := buildChain(t, uuid.New(), []int64{100, 50})
	entries[1].PrevHash = "0000"

	err := VerifyChain(entries)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prev_hash")
}
