package scheduler

import (
	"fmt"
	"time"
)

// Trigger is a recurring wall-clock time in one zone, optionally limited to
// some weekdays.
type Trigger struct {
	Hour     int
	Minute   int
	Weekdays []time.Weekday // empty means every day
	Location *time.Location
}

// Daily fires every day at hour:minute in loc.
func Daily(hour, minute int, loc *time.Location) Trigger {
	return Trigger{Hour: hour, Minute: minute, Location: loc}
}

// Weekly fires on day at hour:minute in loc.
func Weekly(day time.Weekday, hour, minute int, loc *time.Location) Trigger {
	return Trigger{Hour: hour, Minute: minute, Weekdays: []time.Weekday{day}, Location: loc}
}

func (t Trigger) Validate() error {
	if t.Location == nil {
		return fmt.Errorf("trigger has no location")
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("invalid trigger time %02d:%02d", t.Hour, t.Minute)
	}
	for _, d := range t.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday %d", d)
		}
	}
	return nil
}

func (t Trigger) String() string {
	s := fmt.Sprintf("%02d:%02d %s", t.Hour, t.Minute, t.Location)
	if len(t.Weekdays) > 0 {
		s += fmt.Sprintf(" on %v", t.Weekdays)
	}
	return s
}

func (t Trigger) allows(d time.Weekday) bool {
	if len(t.Weekdays) == 0 {
		return true
	}
	for _, w := range t.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// Next returns the first firing strictly after `after`.
//
// Each calendar day has one firing instant and a day is skipped once that
// instant is not after `after`, so a restart never loses the day's run and
// the repeated hour of a fall-back transition never fires twice. A wall time
// inside a spring-forward gap fires that far past the gap (02:30 in a
// 02:00-03:00 gap fires at 03:30).
func (t Trigger) Next(after time.Time) time.Time {
	local := after.In(t.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	// The start day plus a full week covers any weekday filter.
	for i := 0; i < 8; i++ {
		if t.allows(day.Weekday()) {
			if fire := t.on(day); fire.After(after) {
				return fire
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	// Unreachable for a validated trigger.
	return time.Time{}
}

// on returns the firing instant on the calendar date of day.
func (t Trigger) on(day time.Time) time.Time {
	fire := time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, t.Location)
	if fire.Hour() == t.Hour && fire.Minute() == t.Minute {
		return fire
	}

	// Gap: time.Date may resolve with either offset. Reading the wall time
	// with the earlier offset lands past the gap.
	wall := time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
	_, before := fire.Add(-12 * time.Hour).Zone()
	_, later := fire.Add(12 * time.Hour).Zone()
	a := wall.Add(-time.Duration(before) * time.Second)
	b := wall.Add(-time.Duration(later) * time.Second)
	if b.After(a) {
		a = b
	}
	return a.In(t.Location)
}
