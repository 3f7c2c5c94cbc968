package services

import (
	"errors"
	"math"
	"time"

	"rewards-service/models"
)

// ErrNothingEarned rejects awards whose amount is too small to earn a single
// point; no ledger entry is written for them.
var ErrNothingEarned = errors.New("amount too small to earn points")

// tierTable maps lifetime earned points to a tier and its earn multiplier.
// Ordered ascending; resolution picks the highest threshold met.
var tierTable = []struct {
	Tier       string
	Threshold  int64
	Multiplier float64
}{
	{models.TierBronze, 0, 1.00},
	{models.TierSilver, 1000, 1.10},
	{models.TierGold, 5000, 1.25},
	{models.TierPlatinum, 15000, 1.50},
}

// TierForLifetime resolves the highest tier whose threshold the lifetime
// total meets.
func TierForLifetime(lifetime int64) string {
	tier := tierTable[0].Tier
	for _, row := range tierTable {
		if lifetime >= row.Threshold {
			tier = row.Tier
		}
	}
	return tier
}

func TierMultiplier(tier string) float64 {
	for _, row := range tierTable {
		if row.Tier == tier {
			return row.Multiplier
		}
	}
	return 1.00
}

// StreakMultiplier rewards consecutive qualifying days of activity.
func StreakMultiplier(streak int) float64 {
	switch {
	case streak >= 30:
		return 1.50
	case streak >= 7:
		return 1.25
	case streak >= 3:
		return 1.10
	default:
		return 1.00
	}
}

// NextStreak continues, holds, or resets the streak. Same-day re-evaluation
// is idempotent: activity already counted today leaves the streak unchanged.
func NextStreak(streak int, lastActivity *time.Time, today time.Time) int {
	if lastActivity == nil {
		return 1
	}
	last := lastActivity.UTC().Truncate(24 * time.Hour)
	day := today.UTC().Truncate(24 * time.Hour)
	switch day.Sub(last) {
	case 0:
		if streak < 1 {
			return 1
		}
		return streak
	case 24 * time.Hour:
		return streak + 1
	default:
		return 1
	}
}

// PointsResult is the full earn breakdown for one award.
type PointsResult struct {
	BasePoints       int64
	TierMultiplier   float64
	StreakMultiplier float64
	NewStreak        int
	PointsEarned     int64
}

// CalculatePoints is pure: it derives the points for a purchase from the
// account's current tier, streak and last activity date without touching
// storage. minorUnitsPerPoint is the spend needed for one base point.
func CalculatePoints(amountMinor, minorUnitsPerPoint int64, tier string, streak int, lastActivity *time.Time, today time.Time) (PointsResult, error) {
	if amountMinor < 0 {
		return PointsResult{}, errors.New("amount must not be negative")
	}

	res := PointsResult{
		BasePoints:     amountMinor / minorUnitsPerPoint,
		TierMultiplier: TierMultiplier(tier),
		NewStreak:      NextStreak(streak, lastActivity, today),
	}
	// The multiplier reflects the streak including today's activity, so a
	// broken streak never earns yesterday's boost.
	res.StreakMultiplier = StreakMultiplier(res.NewStreak)
	res.PointsEarned = int64(math.Floor(float64(res.BasePoints) * res.TierMultiplier * res.StreakMultiplier))

	if res.PointsEarned <= 0 {
		return res, ErrNothingEarned
	}
	return res, nil
}
