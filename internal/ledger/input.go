package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number coerces a decoded JSON value into a finite number. Numeric strings
// are accepted; anything else is reported as not a number.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, false
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MaxRewardStars caps a reward's price so it always fits the balance column.
const MaxRewardStars = math.MaxInt32

// clampStars floors f and bounds it to [lo, hi] before converting, so values
// beyond the int range never wrap.
func clampStars(f float64, lo, hi int) int {
	return int(math.Min(math.Max(math.Floor(f), float64(lo)), float64(hi)))
}

// ChallengeStars normalizes the stars of a regular challenge. Missing, zero
// or non-numeric input counts as one star.
func ChallengeStars(v any) int {
	f, ok := Number(v)
	if !ok || f == 0 {
		return MinChallengeStars
	}
	return clampStars(f, MinChallengeStars, MaxChallengeStars)
}

// DailyStars normalizes the stars of a daily challenge; input is required.
func DailyStars(v any) (int, bool) {
	f, ok := Number(v)
	if !ok {
		return 0, false
	}
	return clampStars(f, MinChallengeStars, MaxChallengeStars), true
}

// RewardStars normalizes a reward's price into [0, MaxRewardStars]; input is
// required.
func RewardStars(v any) (int, bool) {
	f, ok := Number(v)
	if !ok {
		return 0, false
	}
	return clampStars(f, 0, MaxRewardStars), true
}
