// Package snapshot captures ambient desktop state at a point in time:
// wall-clock derived fields plus best-effort platform probes for the active
// window, screen state and power source. Probe absence is a valid value,
// never an error.
package snapshot

import (
	"context"
	"time"
)

// Context is an immutable snapshot of the listening environment.
type Context struct {
	Hour    int // 0-23
	Weekday int // 0=Monday .. 6=Sunday
	Weekend bool
	Season  string

	ActiveWindow string
	ScreenOn     *bool
	OnBattery    *bool
}

// At returns the pure time-derived part of a Context for the given instant.
func At(now time.Time) Context {
	// time.Weekday starts on Sunday; we count from Monday.
	weekday := (int(now.Weekday()) + 6) % 7
	return Context{
		Hour:    now.Hour(),
		Weekday: weekday,
		Weekend: weekday >= 5,
		Season:  season(now.Month()),
	}
}

// Capture returns a full Context for "now", querying the platform for the
// active window, screen and power state. Each probe is bounded by its own
// timeout so a stalled helper command cannot hang the caller.
func Capture(ctx context.Context) Context {
	c := At(time.Now())
	c.ActiveWindow = activeWindow(ctx)
	c.ScreenOn = screenOn(ctx)
	c.OnBattery = onBattery(ctx)
	return c
}

func season(m time.Month) string {
	switch {
	case m >= time.March && m <= time.May:
		return "spring"
	case m >= time.June && m <= time.August:
		return "summer"
	case m >= time.September && m <= time.November:
		return "fall"
	default:
		return "winter"
	}
}
