package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"habit-bot/internal/dates"
	"habit-bot/internal/models"
	"habit-bot/internal/stats"
	"habit-bot/pkg/logger"
)

// SummaryStore is what the weekly cycle reads and writes.
type SummaryStore interface {
	UserLister
	GetTrackableHabits(ctx context.Context, userID int64) ([]models.Habit, error)
	UpsertWeeklySummary(ctx context.Context, userID int64, weekStart, weekEnd time.Time, stats []byte) error
	MarkWeeklySummarySent(ctx context.Context, userID int64, weekStart time.Time) error
}

// Summarizer aggregates a user's habits over a window.
type Summarizer interface {
	SummarizeHabits(ctx context.Context, habits []models.Habit, ref time.Time, window dates.Window, mode stats.Mode) (models.WeeklyStats, error)
}

// SummarySender delivers a weekly summary.
type SummarySender interface {
	SendWeeklySummary(ctx context.Context, user *models.User, stats models.WeeklyStats) error
}

// Weekly computes, stores and sends every notifiable user's summary for the
// current week.
type Weekly struct {
	store      SummaryStore
	summarizer Summarizer
	sender     SummarySender
	weekStart  time.Weekday
	opts       Options
	logger     *logger.Logger
}

func NewWeekly(store SummaryStore, summarizer Summarizer, sender SummarySender, weekStart time.Weekday, opts Options, logger *logger.Logger) *Weekly {
	return &Weekly{
		store:      store,
		summarizer: summarizer,
		sender:     sender,
		weekStart:  weekStart,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// Run visits every user once with the same isolation rules as Daily.Run.
// Running it twice in one week overwrites that week's snapshots.
func (w *Weekly) Run(ctx context.Context) (Report, error) {
	report := newReport("weekly", w.opts)
	window := dates.WeekOf(report.Date, w.weekStart)
	log := w.logger.With("run_id", report.RunID, "cycle", report.Cycle, "week_start", dates.Key(window.Start))

	users, err := w.store.GetActiveNotifiableUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}
	report.Users = len(users)
	log.Infow("Weekly cycle started", "users", len(users))

	for i := range users {
		if i > 0 && !pace(ctx, w.opts.Pacing) {
			report.Abandoned = true
			break
		}

		user := &users[i]
		sent, err := w.summarize(ctx, user, report.Date, window)
		switch {
		case err != nil:
			report.Failed++
			log.Errorw("Failed to deliver weekly summary", "user_id", user.ID, "error", err)
		case !sent:
			report.Skipped++
		default:
			report.Sent++
		}
	}

	report.Duration = w.opts.Clock.Now().Sub(report.Started)
	log.Infow("Weekly cycle finished",
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"abandoned", report.Abandoned,
		"duration", report.Duration)
	return report, nil
}

func (w *Weekly) summarize(ctx context.Context, user *models.User, today time.Time, window dates.Window) (bool, error) {
	habits, err := w.store.GetTrackableHabits(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load habits: %w", err)
	}
	if len(habits) == 0 {
		return false, nil
	}

	weekly, err := w.summarizer.SummarizeHabits(ctx, habits, today, window, stats.ModeFixedWeek)
	if err != nil {
		return false, err
	}

	payload, err := json.Marshal(weekly)
	if err != nil {
		return false, fmt.Errorf("failed to encode weekly stats: %w", err)
	}
	if err := w.store.UpsertWeeklySummary(ctx, user.ID, window.Start, window.End, payload); err != nil {
		return false, err
	}

	if err := w.sender.SendWeeklySummary(ctx, user, weekly); err != nil {
		return false, fmt.Errorf("failed to send weekly summary: %w", err)
	}

	if err := w.store.MarkWeeklySummarySent(ctx, user.ID, window.Start); err != nil {
		return false, err
	}
	return true, nil
}
