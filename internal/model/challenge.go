package model

import "time"

type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeAccepted  ChallengeStatus = "accepted"
	ChallengeReported  ChallengeStatus = "reported_accomplishment"
	ChallengeCompleted ChallengeStatus = "completed"
)

type Challenge struct {
	ID          string          `json:"id"`
	CoupleID    string          `json:"couple_id"`
	CreatedBy   string          `json:"created_by"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Stars       int             `json:"stars"`
	Status      ChallengeStatus `json:"status"`
	AcceptedBy  *string         `json:"accepted_by"`
	ReportedBy  *string         `json:"reported_by"`
	ReportedAt  *time.Time      `json:"reported_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DailyChallenge is scoped to one calendar day (YYYY-MM-DD, UTC).
type DailyChallenge struct {
	ID          string     `json:"id"`
	CoupleID    string     `json:"couple_id"`
	DayDate     string     `json:"day_date"`
	CreatedBy   string     `json:"created_by"`
	Title       string     `json:"title"`
	Stars       int        `json:"stars"`
	CompletedBy *string    `json:"completed_by"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
