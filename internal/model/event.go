package model

import "time"

// Activity actions recorded in the couple's event log.
const (
	ActionCreateMessage       = "create_message"
	ActionCreateChallenge     = "create_challenge"
	ActionCreateReward        = "create_reward"
	ActionCreateReview        = "create_review"
	ActionEditDay             = "edit_day"
	ActionAnswerDailyQuestion = "answer_daily_question"
)

// Event is an append-only activity row. SeenBy only ever grows.
type Event struct {
	ID         string    `json:"id"`
	CoupleID   string    `json:"couple_id"`
	ActorID    *string   `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType *string   `json:"entity_type"`
	EntityID   *string   `json:"entity_id"`
	Message    *string   `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	SeenBy     []string  `json:"seen_by"`
}

// SeenByUser reports whether userID has seen the event, counting the actor
// as having seen their own action.
func (e Event) SeenByUser(userID string) bool {
	if e.ActorID != nil && *e.ActorID == userID {
		return true
	}
	for _, id := range e.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}
