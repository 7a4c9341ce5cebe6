// Package tracker decides per user and calendar day whether a reminder goes
// out, and records the user's answers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habit-bot/internal/dates"
	"habit-bot/internal/db"
	"habit-bot/internal/models"
	"habit-bot/pkg/logger"
)

// ErrHabitNotTrackable is returned when a response targets a habit that is
// inactive or belongs to someone else.
var ErrHabitNotTrackable = errors.New("habit is not trackable")

// Store is the part of the entry store the tracker needs.
type Store interface {
	GetHabit(ctx context.Context, habitID int64) (*models.Habit, error)
	GetTrackableHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	HasAnyEntryForDate(ctx context.Context, userID int64, date time.Time) (bool, error)
	UpsertHabitEntry(ctx context.Context, habitID int64, date time.Time, completed bool) (*models.HabitEntry, error)
	GetNotification(ctx context.Context, userID int64, date time.Time) (*models.Notification, error)
	UpsertNotification(ctx context.Context, userID int64, date time.Time) error
	MarkNotificationSent(ctx context.Context, userID int64, date time.Time) error
	MarkNotificationResponded(ctx context.Context, userID int64, date time.Time) error
}

// Gateway delivers the reminder. It must not retry on its own.
type Gateway interface {
	SendReminder(ctx context.Context, user *models.User, date time.Time, habits []models.Habit) error
}

// Outcome says what Dispatch did.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeDisabled    Outcome = "notifications_disabled"
	OutcomeNoHabits    Outcome = "no_habits"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeSuppressed  Outcome = "suppressed"
)

// Skipped reports whether no reminder went out.
func (o Outcome) Skipped() bool {
	return o != OutcomeSent
}

type Tracker struct {
	store   Store
	gateway Gateway
	logger  *logger.Logger
}

func New(store Store, gateway Gateway, logger *logger.Logger) *Tracker {
	return &Tracker{store: store, gateway: gateway, logger: logger}
}

// Dispatch sends the user's reminder for date unless one of the pre-checks
// says otherwise. Any habit entry on that date suppresses the reminder, even
// when other habits are still unanswered.
func (t *Tracker) Dispatch(ctx context.Context, user *models.User, date time.Time) (Outcome, error) {
	date = dates.Normalize(date)

	if !user.NotificationsEnabled {
		return OutcomeDisabled, nil
	}

	habits, err := t.store.GetTrackableHabits(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load habits: %w", err)
	}
	if len(habits) == 0 {
		return OutcomeNoHabits, nil
	}

	existing, err := t.store.GetNotification(ctx, user.ID, date)
	switch {
	case err == nil && existing.Sent:
		return OutcomeAlreadySent, nil
	case err != nil && !errors.Is(err, db.ErrNotFound):
		return "", fmt.Errorf("failed to load notification: %w", err)
	}

	engaged, err := t.store.HasAnyEntryForDate(ctx, user.ID, date)
	if err != nil {
		return "", fmt.Errorf("failed to check today's entries: %w", err)
	}
	if engaged {
		return OutcomeSuppressed, nil
	}

	if err := t.store.UpsertNotification(ctx, user.ID, date); err != nil {
		return "", err
	}
	if err := t.store.MarkNotificationSent(ctx, user.ID, date); err != nil {
		return "", err
	}

	if err := t.gateway.SendReminder(ctx, user, date, habits); err != nil {
		return "", fmt.Errorf("failed to send reminder: %w", err)
	}

	t.logger.Debugw("Reminder sent", "user_id", user.ID, "date", dates.Key(date), "habits", len(habits))
	return OutcomeSent, nil
}

// RecordResponse stores the answer for (habit, date), overwriting any earlier
// answer, and marks the user's day as responded. The two writes are not
// atomic: if the second fails the entry stays and the error is returned.
func (t *Tracker) RecordResponse(ctx context.Context, userID, habitID int64, date time.Time, completed bool) (*models.HabitEntry, error) {
	date = dates.Normalize(date)

	habit, err := t.store.GetHabit(ctx, habitID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrHabitNotTrackable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load habit: %w", err)
	}
	if habit.UserID != userID || !habit.IsActive {
		return nil, ErrHabitNotTrackable
	}

	entry, err := t.store.UpsertHabitEntry(ctx, habitID, date, completed)
	if err != nil {
		return nil, err
	}

	if err := t.store.MarkNotificationResponded(ctx, userID, date); err != nil {
		return entry, err
	}

	t.logger.Debugw("Response recorded",
		"user_id", userID,
		"habit_id", habitID,
		"date", dates.Key(date),
		"completed", completed)
	return entry, nil
}
