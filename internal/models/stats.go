package models

import (
	"time"
)

type HabitStats struct {
	HabitID        int64   `json:"habit_id"`
	Name           string  `json:"name"`
	Streak         int     `json:"streak"`
	CompletedDays  int     `json:"completed_days"`
	TotalDays      int     `json:"total_days"`
	CompletionRate float64 `json:"completion_rate"`
	Tier           string  `json:"tier"`
}

// WeeklyStats is the snapshot persisted in WeeklySummary.Stats and rendered to the user.
type WeeklyStats struct {
	WeekStart      time.Time    `json:"week_start"`
	WeekEnd        time.Time    `json:"week_end"`
	Mode           string       `json:"mode"`
	Habits         []HabitStats `json:"habits"`
	CompletedDays  int          `json:"completed_days"`
	TotalDays      int          `json:"total_days"`
	CompletionRate float64      `json:"completion_rate"`
	Tier           string       `json:"tier"`
}
