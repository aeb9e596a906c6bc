package ledger

import "github.com/luckylove/server/internal/apperr"

const (
	MaxDailyChallenges = 4
	DailyStarBudget    = 5
)

var (
	errDailyCount  = apperr.Conflict("Maximo 4 retos diarios.")
	errDailyBudget = apperr.Conflict("Solo tienes 5 estrellas para repartir.")
)

// CheckDailyBudget reports whether a daily challenge worth stars fits in a
// day that already holds count challenges totalling existing stars.
func CheckDailyBudget(count, existing, stars int) error {
	if count >= MaxDailyChallenges {
		return errDailyCount
	}
	if existing+stars > DailyStarBudget {
		return errDailyBudget
	}
	return nil
}
