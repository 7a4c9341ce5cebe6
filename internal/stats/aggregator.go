// Package stats computes streaks and completion rates from sparse daily
// habit entries. Everything except Summarizer is a pure function.
package stats

import (
	"math"
	"time"

	"habit-bot/internal/dates"
	"habit-bot/internal/models"
)

// DefaultStreakHorizon bounds how far back a streak scan walks.
const DefaultStreakHorizon = 30

// weekDays is the denominator of ModeFixedWeek.
const weekDays = 7

// Mode selects the completion-rate denominator.
type Mode string

const (
	// ModeFixedWeek divides by 7 regardless of how many days were answered.
	// The scheduled weekly summary uses it.
	ModeFixedWeek Mode = "fixed_week"
	// ModeObserved divides by the number of entries present in the window.
	// The on-demand summary uses it.
	ModeObserved Mode = "observed"
)

// Streak counts consecutive completed days ending at ref, looking back at most
// horizon days. The first missing or not-completed day ends the streak, so a
// day without an answer (including ref itself) yields a break there.
func Streak(entries []models.HabitEntry, ref time.Time, horizon int) int {
	if len(entries) == 0 || horizon < 1 {
		return 0
	}

	completed := make(map[string]bool, len(entries))
	for _, e := range entries {
		completed[dates.Key(e.Date)] = e.Completed
	}

	streak := 0
	for i := 0; i < horizon; i++ {
		if !completed[dates.Key(dates.AddDays(ref, -i))] {
			break
		}
		streak++
	}
	return streak
}

// Completion returns the completed count and the denominator for window.
func Completion(entries []models.HabitEntry, window dates.Window, mode Mode) (completed, total int) {
	observed := 0
	for _, e := range entries {
		if !window.Contains(e.Date) {
			continue
		}
		observed++
		if e.Completed {
			completed++
		}
	}

	if mode == ModeFixedWeek {
		return completed, weekDays
	}
	return completed, observed
}

// Rate returns completed/total as a percentage, 0 when total is 0.
func Rate(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// Round keeps one decimal place.
func Round(rate float64) float64 {
	return math.Round(rate*10) / 10
}

// Rollup sums completed and total days over every habit.
func Rollup(habits []models.HabitStats) (completed, total int, rate float64) {
	for _, h := range habits {
		completed += h.CompletedDays
		total += h.TotalDays
	}
	return completed, total, Round(Rate(completed, total))
}

// HabitSummary builds one habit's statistics for window with the streak taken at ref.
func HabitSummary(habit models.Habit, entries []models.HabitEntry, ref time.Time, window dates.Window, mode Mode, horizon int, tiers Tiers) models.HabitStats {
	completed, total := Completion(entries, window, mode)
	rate := Round(Rate(completed, total))

	return models.HabitStats{
		HabitID:        habit.ID,
		Name:           habit.Name,
		Streak:         Streak(entries, ref, horizon),
		CompletedDays:  completed,
		TotalDays:      total,
		CompletionRate: rate,
		Tier:           tiers.Classify(rate),
	}
}

// Weekly assembles the snapshot for a set of per-habit statistics.
func Weekly(habits []models.HabitStats, window dates.Window, mode Mode, tiers Tiers) models.WeeklyStats {
	completed, total, rate := Rollup(habits)

	return models.WeeklyStats{
		WeekStart:      window.Start,
		WeekEnd:        window.End,
		Mode:           string(mode),
		Habits:         habits,
		CompletedDays:  completed,
		TotalDays:      total,
		CompletionRate: rate,
		Tier:           tiers.Classify(rate),
	}
}
