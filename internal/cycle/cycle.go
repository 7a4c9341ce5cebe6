// Package cycle runs the daily reminder and weekly summary batches over the
// active user population, one user at a time.
package cycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"habit-bot/internal/dates"
	"habit-bot/internal/models"
)

// DefaultPacing is the delay between two users, kept under Telegram's
// outbound message limits.
const DefaultPacing = 100 * time.Millisecond

// UserLister returns the users a cycle visits.
type UserLister interface {
	GetActiveNotifiableUsers(ctx context.Context) ([]models.User, error)
}

// Report counts what a single cycle run did.
type Report struct {
	RunID     string
	Cycle     string
	Date      time.Time
	Users     int
	Sent      int
	Skipped   int
	Failed    int
	Started   time.Time
	Duration  time.Duration
	Abandoned bool
}

// Options are shared by both cycles.
type Options struct {
	Location *time.Location
	Pacing   time.Duration
	Clock    dates.Clock
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Pacing < 0 {
		o.Pacing = 0
	}
	if o.Clock == nil {
		o.Clock = dates.SystemClock
	}
	return o
}

func newReport(name string, opts Options) Report {
	now := opts.Clock.Now()
	return Report{
		RunID:   uuid.NewString(),
		Cycle:   name,
		Date:    dates.Day(now, opts.Location),
		Started: now,
	}
}

// pace waits between users. It returns false when ctx ends first.
func pace(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
