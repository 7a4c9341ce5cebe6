package dates

import "time"

// Window is an inclusive range of calendar dates.
type Window struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the 7-day window containing d that begins on weekStart.
func WeekOf(d time.Time, weekStart time.Weekday) Window {
	d = Normalize(d)
	offset := (int(d.Weekday()) - int(weekStart) + 7) % 7
	start := AddDays(d, -offset)
	return Window{Start: start, End: AddDays(start, 6)}
}

// Lookback returns the window of n days ending on (and including) d.
func Lookback(d time.Time, n int) Window {
	d = Normalize(d)
	if n < 1 {
		n = 1
	}
	return Window{Start: AddDays(d, -(n - 1)), End: d}
}

// Days is the number of calendar dates in the window.
func (w Window) Days() int {
	return int(Normalize(w.End).Sub(Normalize(w.Start)).Hours()/24) + 1
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	d = Normalize(d)
	return !d.Before(Normalize(w.Start)) && !d.After(Normalize(w.End))
}

// Union returns the smallest window covering both w and other.
func (w Window) Union(other Window) Window {
	out := w
	if other.Start.Before(out.Start) {
		out.Start = other.Start
	}
	if other.End.After(out.End) {
		out.End = other.End
	}
	return out
}
