// Package dates holds the calendar helpers shared by the tracker, the
// aggregator and the cycles. A calendar date is a time.Time at UTC midnight,
// which is also what pgx returns for a Postgres date column.
package dates

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the canonical text form of a calendar date.
const Layout = "2006-01-02"

// ClockLayout is the text form of a time of day ("20:00").
const ClockLayout = "15:04"

// Clock reports the current instant. Production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// LoadLocation loads an IANA zone. Unlike time.LoadLocation an empty name is
// an error: the engine runs on one explicitly configured zone.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("time zone is not configured")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", name, err)
	}
	return loc, nil
}

// Day returns the calendar date of t as observed in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the reference date for clock in loc.
func Today(clock Clock, loc *time.Location) time.Time {
	return Day(clock.Now(), loc)
}

// Normalize strips the clock part and zone from d, keeping its Y-M-D fields.
func Normalize(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays moves a calendar date by n days.
func AddDays(d time.Time, n int) time.Time {
	return Normalize(d).AddDate(0, 0, n)
}

// Key formats a calendar date for map lookups and callback payloads.
func Key(d time.Time) string {
	return d.Format(Layout)
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	d, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// ParseClock reads an HH:MM time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", s)
}
