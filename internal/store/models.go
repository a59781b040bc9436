package store

import "time"

type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	XP             int       `json:"xp"`
	Level          int       `json:"level"`
	Streak         int       `json:"streak"`
	CompletedTasks int       `json:"completedTasks"`
	SelectedMode   string    `json:"selectedMode"`
	Tier           string    `json:"tier"` // "free" or "premium"
	DailyUsage     int       `json:"dailyUsage"`
	LastUsageReset string    `json:"lastUsageReset"` // calendar date, "2006-01-02"
	EmailVerified  bool      `json:"emailVerified"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActive     time.Time `json:"lastActive"`
}

type Chat struct {
	ID        string    `json:"id"` // UUID
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"` // UUID
	ChatID    string    `json:"chat_id"`
	Sender    string    `json:"sender"` // "user" or "model"
	Content   string    `json:"content"`
	Mode      string    `json:"mode,omitempty"` // persona that produced a model message
	Timestamp time.Time `json:"timestamp"`
}
