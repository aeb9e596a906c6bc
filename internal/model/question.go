package model

import "time"

const (
	QuestionSourceDaily = "mock"
	QuestionSourceUser  = "user"
)

type DailyQuestion struct {
	ID       string    `json:"id"`
	CoupleID string    `json:"couple_id"`
	DayDate  string    `json:"day_date"`
	Question string    `json:"question"`
	Source   string    `json:"source"`
	AskedBy  *string   `json:"asked_by"`
	AskedAt  time.Time `json:"asked_at"`
}

type DailyAnswer struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	UserID     string    `json:"user_id"`
	AnswerText string    `json:"answer_text"`
	CreatedAt  time.Time `json:"created_at"`
}
