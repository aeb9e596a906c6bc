package ledger

import (
	"encoding/json"
	"math"
	"testing"
)

func TestChallengeStars(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{float64(3), 3},
		{float64(9), 5},
		{float64(-2), 1},
		{float64(0), 1},
		{"4", 4},
		{"abc", 1},
		{nil, 1},
		{2.7, 2},
		{json.Number("5"), 5},
		{1e20, 5},
		{-1e20, 1},
		{"1e300", 5},
	}
	for _, tt := range tests {
		if got := ChallengeStars(tt.in); got != tt.want {
			t.Errorf("ChallengeStars(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDailyStars(t *testing.T) {
	if _, ok := DailyStars(nil); ok {
		t.Error("missing stars must be rejected")
	}
	if _, ok := DailyStars("many"); ok {
		t.Error("non-numeric stars must be rejected")
	}
	if _, ok := DailyStars(math.Inf(1)); ok {
		t.Error("infinite stars must be rejected")
	}
	if n, ok := DailyStars(float64(7)); !ok || n != 5 {
		t.Errorf("DailyStars(7) = (%d, %v), want (5, true)", n, ok)
	}
	if n, ok := DailyStars(0.5); !ok || n != 1 {
		t.Errorf("DailyStars(0.5) = (%d, %v), want (1, true)", n, ok)
	}
	if n, ok := DailyStars(1e20); !ok || n != 5 {
		t.Errorf("DailyStars(1e20) = (%d, %v), want (5, true)", n, ok)
	}
	if n, ok := DailyStars(-1e20); !ok || n != 1 {
		t.Errorf("DailyStars(-1e20) = (%d, %v), want (1, true)", n, ok)
	}
}

func TestRewardStars(t *testing.T) {
	if n, ok := RewardStars(float64(-3)); !ok || n != 0 {
		t.Errorf("RewardStars(-3) = (%d, %v), want (0, true)", n, ok)
	}
	if n, ok := RewardStars(4.9); !ok || n != 4 {
		t.Errorf("RewardStars(4.9) = (%d, %v), want (4, true)", n, ok)
	}
	if n, ok := RewardStars(1e20); !ok || n != MaxRewardStars {
		t.Errorf("RewardStars(1e20) = (%d, %v), want (%d, true)", n, ok, MaxRewardStars)
	}
	if n, ok := RewardStars(-1e20); !ok || n != 0 {
		t.Errorf("RewardStars(-1e20) = (%d, %v), want (0, true)", n, ok)
	}
	if _, ok := RewardStars("x"); ok {
		t.Error("non-numeric price must be rejected")
	}
}

func TestCheckDailyBudget(t *testing.T) {
	if err := CheckDailyBudget(2, 4, 2); err != errDailyBudget {
		t.Errorf("sum 4 + 2 err = %v, want budget conflict", err)
	}
	if err := CheckDailyBudget(2, 4, 1); err != nil {
		t.Errorf("sum 4 + 1 err = %v, want nil", err)
	}
	if err := CheckDailyBudget(4, 4, 1); err != errDailyCount {
		t.Errorf("fifth challenge err = %v, want count conflict", err)
	}
}
