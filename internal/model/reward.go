package model

import "time"

type Reward struct {
	ID            string     `json:"id"`
	CoupleID      string     `json:"couple_id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	StarsRequired int        `json:"stars_required"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	RedeemedAt    *time.Time `json:"redeemed_at"`
	RedeemedBy    *string    `json:"redeemed_by"`
}

func (r Reward) Redeemed() bool {
	return r.RedeemedAt != nil
}

// StarEvent is a ledger entry. Positive stars are earned, negative are spent.
type StarEvent struct {
	ID          string    `json:"id"`
	CoupleID    string    `json:"couple_id"`
	ChallengeID *string   `json:"challenge_id"`
	RewardID    *string   `json:"reward_id"`
	AwardedTo   string    `json:"awarded_to"`
	Stars       int       `json:"stars"`
	CreatedAt   time.Time `json:"created_at"`
}

type CoupleLevel struct {
	CoupleID  string    `json:"couple_id"`
	Level     int       `json:"level"`
	XP        int       `json:"xp"`
	UpdatedAt time.Time `json:"updated_at"`
}
