package stats

import (
	"context"
	"fmt"
	"time"

	"habit-bot/internal/dates"
	"habit-bot/internal/models"
)

// EntryReader is the slice of the entry store the summarizer reads from.
type EntryReader interface {
	GetTrackableHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	GetHabitEntriesInRange(ctx context.Context, habitID int64, start, end time.Time) ([]models.HabitEntry, error)
}

// Summarizer loads a user's entries and aggregates them. The scheduled weekly
// cycle and the on-demand /summary command share one instance so both apply
// the same horizon and tiers.
type Summarizer struct {
	store   EntryReader
	horizon int
	tiers   Tiers
}

func NewSummarizer(store EntryReader, horizon int, tiers Tiers) *Summarizer {
	if horizon < 1 {
		horizon = DefaultStreakHorizon
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	return &Summarizer{store: store, horizon: horizon, tiers: tiers}
}

// Summarize aggregates every trackable habit of the user.
func (s *Summarizer) Summarize(ctx context.Context, userID int64, ref time.Time, window dates.Window, mode Mode) (models.WeeklyStats, error) {
	habits, err := s.store.GetTrackableHabits(ctx, userID)
	if err != nil {
		return models.WeeklyStats{}, fmt.Errorf("failed to load habits: %w", err)
	}
	return s.SummarizeHabits(ctx, habits, ref, window, mode)
}

// SummarizeHabits aggregates the given habits. One range query per habit
// covers both the summary window and the streak lookback.
func (s *Summarizer) SummarizeHabits(ctx context.Context, habits []models.Habit, ref time.Time, window dates.Window, mode Mode) (models.WeeklyStats, error) {
	ref = dates.Normalize(ref)
	span := window.Union(dates.Lookback(ref, s.horizon))

	perHabit := make([]models.HabitStats, 0, len(habits))
	for _, habit := range habits {
		entries, err := s.store.GetHabitEntriesInRange(ctx, habit.ID, span.Start, span.End)
		if err != nil {
			return models.WeeklyStats{}, fmt.Errorf("failed to load entries for habit %d: %w", habit.ID, err)
		}
		perHabit = append(perHabit, HabitSummary(habit, entries, ref, window, mode, s.horizon, s.tiers))
	}

	return Weekly(perHabit, window, mode, s.tiers), nil
}

// Tiers exposes the bands so renderers classify consistently.
func (s *Summarizer) Tiers() Tiers {
	return s.tiers
}
