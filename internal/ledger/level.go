// Package ledger owns the couple's star economy: challenges that earn
// stars, rewards that spend them, the daily star budget and couple XP.
package ledger

import "errors"

const (
	LevelXPThreshold       = 20
	ChallengeXPReward      = 5
	DailyChallengeXPReward = 1
)

var ErrNegativeXP = errors.New("xp amount must not be negative")

// ApplyXP adds amount to xp. Reaching the threshold advances one level and
// resets xp to zero; any excess over the threshold is discarded.
func ApplyXP(level, xp, amount, threshold int) (newLevel, newXP int, err error) {
	if amount < 0 {
		return level, xp, ErrNegativeXP
	}
	if level < 1 {
		level = 1
	}
	next := xp + amount
	if next >= threshold {
		return level + 1, 0, nil
	}
	return level, next, nil
}
