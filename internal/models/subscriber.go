package models

import "time"

type Reminder struct {
	Interval     Interval   `json:"interval"`
	Currency     string     `json:"currency"`
	LatestRemind *time.Time `json:"latestRemind,omitempty"`
}

// Subscriber is a chat user and their optional reminder preference.
type Subscriber struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Reminder  *Reminder `json:"reminder,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
