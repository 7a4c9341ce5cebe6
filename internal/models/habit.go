package models

import (
	"time"
)

// Habit is trackable while IsActive is true. Deleting a habit only clears the
// flag so its entries stay available for history.
type Habit struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HabitEntry is unique per (HabitID, Date). Date is a calendar date at UTC midnight.
type HabitEntry struct {
	ID        int64     `json:"id"`
	HabitID   int64     `json:"habit_id"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Notification is unique per (UserID, Date).
type Notification struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Date        time.Time  `json:"date"`
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Responded   bool       `json:"responded"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// WeeklySummary is unique per (UserID, WeekStart). Stats holds a JSON-encoded WeeklyStats.
type WeeklySummary struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	WeekStart time.Time  `json:"week_start"`
	WeekEnd   time.Time  `json:"week_end"`
	Stats     []byte     `json:"stats"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
