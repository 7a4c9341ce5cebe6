package db

import (
	"context"
	"errors"
	"time"

	"habit-bot/internal/models"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the entry store contract. Every Upsert*/Mark* method is
// insert-or-replace by its unique key: (telegram_id) for users,
// (habit_id, date) for entries, (user_id, date) for notifications and
// (user_id, week_start) for weekly summaries. Concurrent writers converge on
// one row per key, last write wins.
type Store interface {
	GetOrCreateUser(ctx context.Context, telegramID, chatID int64, username string) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	SetNotificationsEnabled(ctx context.Context, userID int64, enabled bool) error
	GetActiveNotifiableUsers(ctx context.Context) ([]models.User, error)

	CreateHabit(ctx context.Context, userID int64, name, description string) (*models.Habit, error)
	GetHabit(ctx context.Context, habitID int64) (*models.Habit, error)
	GetTrackableHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	DeactivateHabit(ctx context.Context, userID, habitID int64) error

	UpsertHabitEntry(ctx context.Context, habitID int64, date time.Time, completed bool) (*models.HabitEntry, error)
	GetHabitEntriesInRange(ctx context.Context, habitID int64, start, end time.Time) ([]models.HabitEntry, error)
	HasAnyEntryForDate(ctx context.Context, userID int64, date time.Time) (bool, error)

	GetNotification(ctx context.Context, userID int64, date time.Time) (*models.Notification, error)
	UpsertNotification(ctx context.Context, userID int64, date time.Time) error
	MarkNotificationSent(ctx context.Context, userID int64, date time.Time) error
	MarkNotificationResponded(ctx context.Context, userID int64, date time.Time) error

	UpsertWeeklySummary(ctx context.Context, userID int64, weekStart, weekEnd time.Time, stats []byte) error
	MarkWeeklySummarySent(ctx context.Context, userID int64, weekStart time.Time) error
	GetWeeklySummary(ctx context.Context, userID int64, weekStart time.Time) (*models.WeeklySummary, error)

	Ping(ctx context.Context) error
}
