package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DueWindow is how far back a fire time may lie and still count as due.
const DueWindow = time.Minute

// defaultLookback bounds the search for a previous fire time. A schedule
// with no fire in the last year is treated as never fired.
const defaultLookback = 366 * 24 * time.Hour

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard 5-field cron expression or descriptor
// ("@hourly").
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// PreviousFire returns the most recent fire time of sched at or before now,
// searching back at most lookback. The search window doubles from one
// minute so dense schedules resolve in a few Next calls.
func PreviousFire(sched cron.Schedule, now time.Time, lookback time.Duration) (time.Time, bool) {
	if lookback <= 0 {
		lookback = defaultLookback
	}
	for window := time.Minute; ; window *= 2 {
		if window > lookback {
			window = lookback
		}
		// Next is strictly after its argument; back off one second so a fire
		// exactly at the window start is not skipped.
		fire := sched.Next(now.Add(-window).Add(-time.Second))
		if !fire.IsZero() && !fire.After(now) {
			for {
				next := sched.Next(fire)
				if next.IsZero() || next.After(now) {
					return fire, true
				}
				fire = next
			}
		}
		if window == lookback {
			return time.Time{}, false
		}
	}
}

// IsDue reports whether a fire at prev falls inside the due window ending at
// now: 0 <= now-prev < DueWindow.
func IsDue(prev, now time.Time) bool {
	d := now.Sub(prev)
	return d >= 0 && d < DueWindow
}
