// Package scheduler fires jobs at recurring local wall-clock times. It keeps
// no business state; jobs run one at a time on the scheduler's goroutine.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"habit-bot/pkg/logger"
)

// Clock abstracts the passage of time so tests can drive the scheduler.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Job is a named function fired by a trigger.
type Job struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context)

	next time.Time
}

type Scheduler struct {
	jobs   []*Job
	clock  Clock
	logger *logger.Logger
}

func New(clock Clock, logger *logger.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{clock: clock, logger: logger}
}

// Add registers a job. It must be called before Run.
func (s *Scheduler) Add(name string, trigger Trigger, run func(ctx context.Context)) error {
	if err := trigger.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.jobs = append(s.jobs, &Job{Name: name, Trigger: trigger, Run: run})
	return nil
}

// Run blocks until ctx is cancelled, firing each job when its trigger comes
// due. Triggers are re-armed from the clock after every run, so a slow job
// delays but never duplicates later firings.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	now := s.clock.Now()
	for _, j := range s.jobs {
		j.next = j.Trigger.Next(now)
		s.logger.Infow("Job scheduled", "job", j.Name, "trigger", j.Trigger.String(), "next", j.next)
	}

	for {
		job := s.earliest()
		wait := job.next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			s.logger.Infow("Scheduler stopped")
			return ctx.Err()
		case <-s.clock.After(wait):
		}

		// A clock that woke early just waits again.
		if s.clock.Now().Before(job.next) {
			continue
		}

		fired := job.next
		s.logger.Infow("Job fired", "job", job.Name, "scheduled_for", fired)
		s.runJob(ctx, job)

		job.next = nextAfterFiring(job.Trigger, fired, s.clock.Now())
		s.logger.Infow("Job re-armed", "job", job.Name, "next", job.next)
	}
}

func (s *Scheduler) earliest() *Job {
	job := s.jobs[0]
	for _, j := range s.jobs[1:] {
		if j.next.Before(job.next) {
			job = j
		}
	}
	return job
}

func (s *Scheduler) runJob(ctx context.Context, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("Recovered from panic in scheduled job", "job", job.Name, "error", r)
		}
	}()
	job.Run(ctx)
}

// nextAfterFiring re-arms a trigger after it fired at `fired`. It never
// returns another instant on the same local calendar day, and skips firings
// that were missed while the job ran.
func nextAfterFiring(t Trigger, fired, now time.Time) time.Time {
	from := fired
	if now.After(from) {
		from = now
	}

	next := t.Next(from)
	for sameLocalDay(next, fired, t.Location) {
		next = t.Next(next)
	}
	return next
}

func sameLocalDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
