package model

import "time"

type Couple struct {
	ID        string    `json:"id"`
	Code      *string   `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type Profile struct {
	UserID        string    `json:"user_id"`
	Email         string    `json:"email"`
	Alias         *string   `json:"alias"`
	CoupleID      *string   `json:"couple_id"`
	ExpoPushToken *string   `json:"-"`
	ConnectCode   *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type Message struct {
	ID        string    `json:"id"`
	CoupleID  string    `json:"couple_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
