package schedule

import (
	"fmt"
	"time"

	"github.com/camprush/camprush/internal/models"
)

const (
	SlowInterval   = 15 * time.Minute
	MediumInterval = 5 * time.Minute
	FastInterval   = time.Minute

	farHorizon   = 48 * time.Hour
	nearHorizon  = 60 * time.Minute
	cooldownSpan = 120 * time.Minute
)

type Decision struct {
	ShouldPoll         bool          `json:"should_poll"`
	Interval           time.Duration `json:"interval"`
	NextCheckAt        time.Time     `json:"next_check_at"`
	Reason             string        `json:"reason"`
	MinutesUntilTarget float64       `json:"minutes_until_target"`
	Window             TargetWindow  `json:"window"`
}

// Interval returns the polling cadence for a moment relative to the window.
// It never grows as now approaches window.Target from either side.
func Interval(w TargetWindow, now time.Time) (time.Duration, string) {
	until := w.Target.Sub(now)
	since := now.Sub(w.End)

	switch {
	case until > farHorizon:
		return SlowInterval, "target more than 48h away"
	case until > nearHorizon:
		return MediumInterval, "target within 48h"
	case until >= -nearHorizon:
		return FastInterval, "within an hour of target"
	case since < cooldownSpan:
		return MediumInterval, "shortly after target window"
	default:
		return SlowInterval, "target window long past"
	}
}

// Schedule is level-triggered: call it on every tick and it throttles the
// actual network polls. lastCheckAt is nil when the plan was never polled.
func Schedule(plan models.RegistrationPlan, lastCheckAt *time.Time, now time.Time) Decision {
	w := ComputeTargetWindow(plan, now)
	interval, reason := Interval(w, now)

	d := Decision{
		Interval:           interval,
		MinutesUntilTarget: w.Target.Sub(now).Minutes(),
		Window:             w,
	}

	if lastCheckAt == nil {
		d.ShouldPoll = true
		d.NextCheckAt = now.Add(interval)
		d.Reason = "first check; " + reason
		return d
	}

	elapsed := now.Sub(*lastCheckAt)
	if elapsed >= interval {
		d.ShouldPoll = true
		d.NextCheckAt = now.Add(interval)
		d.Reason = reason
		return d
	}

	d.NextCheckAt = lastCheckAt.Add(interval)
	d.Reason = fmt.Sprintf("throttled: last check %s ago, interval %s", elapsed.Round(time.Second), interval)
	return d
}
