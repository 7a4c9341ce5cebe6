package cycle

import (
	"context"
	"fmt"
	"time"

	"habit-bot/internal/dates"
	"habit-bot/internal/models"
	"habit-bot/internal/tracker"
	"habit-bot/pkg/logger"
)

// Dispatcher is the tracker's reminder path.
type Dispatcher interface {
	Dispatch(ctx context.Context, user *models.User, date time.Time) (tracker.Outcome, error)
}

// Daily sends each notifiable user today's reminder.
type Daily struct {
	users      UserLister
	dispatcher Dispatcher
	opts       Options
	logger     *logger.Logger
}

func NewDaily(users UserLister, dispatcher Dispatcher, opts Options, logger *logger.Logger) *Daily {
	return &Daily{users: users, dispatcher: dispatcher, opts: opts.withDefaults(), logger: logger}
}

// Run visits every user once. A failing user is logged and counted; only a
// failure to list users fails the run.
func (d *Daily) Run(ctx context.Context) (Report, error) {
	report := newReport("daily", d.opts)
	log := d.logger.With("run_id", report.RunID, "cycle", report.Cycle, "date", dates.Key(report.Date))

	users, err := d.users.GetActiveNotifiableUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}
	report.Users = len(users)
	log.Infow("Daily cycle started", "users", len(users))

	for i := range users {
		if i > 0 && !pace(ctx, d.opts.Pacing) {
			report.Abandoned = true
			break
		}

		user := &users[i]
		outcome, err := d.dispatcher.Dispatch(ctx, user, report.Date)
		switch {
		case err != nil:
			report.Failed++
			log.Errorw("Failed to dispatch reminder", "user_id", user.ID, "error", err)
		case outcome.Skipped():
			report.Skipped++
			log.Debugw("Reminder skipped", "user_id", user.ID, "reason", string(outcome))
		default:
			report.Sent++
		}
	}

	report.Duration = d.opts.Clock.Now().Sub(report.Started)
	log.Infow("Daily cycle finished",
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"abandoned", report.Abandoned,
		"duration", report.Duration)
	return report, nil
}
