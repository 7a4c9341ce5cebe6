package models

import (
	"time"
)

type User struct {
	ID                   int64     `json:"id"`
	TelegramID           int64     `json:"telegram_id"`
	ChatID               int64     `json:"chat_id"`
	Username             string    `json:"username"`
	IsActive             bool      `json:"is_active"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// UserState is the command layer's per-chat conversation state.
type UserState struct {
	TelegramID   int64  `json:"telegram_id"`
	CurrentState string `json:"current_state"`
}
