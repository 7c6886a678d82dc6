package store

import "time"

// Window is a half-open time range [Start, End) over finalize timestamps.
// A zero Start or End leaves that side unbounded. Calendar constructors use
// local time; weeks start on Monday.
type Window struct {
	Start time.Time
	End   time.Time
	Label string
}

// AllTime matches every record.
func AllTime() Window {
	return Window{Label: "all time"}
}

// WeekOf returns the calendar week containing t.
func WeekOf(t time.Time) Window {
	t = t.Local()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
	start := midnight.AddDate(0, 0, -((int(t.Weekday()) + 6) % 7))
	return Window{
		Start: start,
		End:   start.AddDate(0, 0, 7),
		Label: "week of " + start.Format("2006-01-02"),
	}
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Window {
	t = t.Local()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.Local)
	return Window{
		Start: start,
		End:   start.AddDate(0, 1, 0),
		Label: start.Format("January 2006"),
	}
}

// YearOf returns the given calendar year.
func YearOf(year int) Window {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.Local)
	return Window{
		Start: start,
		End:   start.AddDate(1, 0, 0),
		Label: start.Format("2006"),
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// clause translates the window into a SQL condition on a unix-seconds
// timestamp column.
func (w Window) clause(column string) (string, []any) {
	cond := "1=1"
	var args []any
	if !w.Start.IsZero() {
		cond += " AND " + column + " >= ?"
		args = append(args, w.Start.Unix())
	}
	if !w.End.IsZero() {
		cond += " AND " + column + " < ?"
		args = append(args, w.End.Unix())
	}
	return cond, args
}
