// Package schedule estimates when a registration opens and decides how often
// its detection page should be polled.
package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/camprush/camprush/internal/models"
)

type WindowStrategy string

const (
	StrategyExplicit   WindowStrategy = "explicit"
	StrategyURLPattern WindowStrategy = "url_pattern"
	StrategySeasonal   WindowStrategy = "seasonal"
)

const (
	preciseMargin  = time.Hour
	seasonalMargin = 24 * time.Hour
	openHour       = 9
)

// TargetWindow is derived on every decision and never stored.
// Target is the estimated opening instant; Start <= Target <= End.
type TargetWindow struct {
	Start    time.Time      `json:"start"`
	Target   time.Time      `json:"target"`
	End      time.Time      `json:"end"`
	Strategy WindowStrategy `json:"strategy"`
}

func newWindow(target time.Time, margin time.Duration, s WindowStrategy) TargetWindow {
	return TargetWindow{Start: target.Add(-margin), Target: target, End: target.Add(margin), Strategy: s}
}

// ComputeTargetWindow always returns a window; weaker evidence only widens it.
func ComputeTargetWindow(plan models.RegistrationPlan, now time.Time) TargetWindow {
	if plan.ManualOpenAt != nil {
		return newWindow(*plan.ManualOpenAt, preciseMargin, StrategyExplicit)
	}

	loc := PlanLocation(plan)
	if plan.DetectURL != nil {
		if t, ok := ParseURLDate(*plan.DetectURL, loc); ok {
			return newWindow(t, preciseMargin, StrategyURLPattern)
		}
	}
	return newWindow(seasonalGuess(now.In(loc)), seasonalMargin, StrategySeasonal)
}

// PlanLocation falls back to UTC for empty or unknown zones.
func PlanLocation(plan models.RegistrationPlan) *time.Location {
	if plan.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(plan.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func seasonalGuess(now time.Time) time.Time {
	loc := now.Location()
	y := now.Year()
	switch m := now.Month(); {
	case m <= time.March:
		return time.Date(y, time.March, 1, openHour, 0, 0, 0, loc)
	case m <= time.September:
		return time.Date(y, time.August, 15, openHour, 0, 0, 0, loc)
	default:
		return time.Date(y+1, time.March, 1, openHour, 0, 0, 0, loc)
	}
}

var (
	reISODate    = regexp.MustCompile(`(?:^|[^0-9])(\d{4})-(\d{1,2})-(\d{1,2})(?:[^0-9]|$)`)
	reUSDate     = regexp.MustCompile(`(?:^|[^0-9])(\d{1,2})-(\d{1,2})-(\d{4})(?:[^0-9]|$)`)
	reSeasonYear = regexp.MustCompile(`(?i)(?:^|/)(\d{4})[/_-](spring|summer|fall|autumn|winter)(?:[/?#._-]|$)`)
	reYearSeason = regexp.MustCompile(`(?i)(?:^|/)(spring|summer|fall|autumn|winter)[/_-](\d{4})(?:[/?#._-]|$)`)
)

// seasonOpen is when registration for a season usually opens.
var seasonOpen = map[string]struct {
	month time.Month
	day   int
}{
	"spring": {time.January, 15},
	"summer": {time.March, 1},
	"fall":   {time.August, 15},
	"autumn": {time.August, 15},
	"winter": {time.October, 15},
}

// ParseURLDate extracts an opening date from a tracked URL. Explicit dates
// win over season tokens; impossible dates are ignored.
func ParseURLDate(raw string, loc *time.Location) (time.Time, bool) {
	if m := reISODate.FindStringSubmatch(raw); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3], loc); ok {
			return t, true
		}
	}
	if m := reUSDate.FindStringSubmatch(raw); m != nil {
		if t, ok := buildDate(m[3], m[1], m[2], loc); ok {
			return t, true
		}
	}
	if m := reSeasonYear.FindStringSubmatch(raw); m != nil {
		return seasonDate(m[1], m[2], loc)
	}
	if m := reYearSeason.FindStringSubmatch(raw); m != nil {
		return seasonDate(m[2], m[1], loc)
	}
	return time.Time{}, false
}

func buildDate(ys, ms, ds string, loc *time.Location) (time.Time, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, openHour, 0, 0, 0, loc)
	// time.Date normalises Feb 30 into March; reject those.
	if t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func seasonDate(ys, season string, loc *time.Location) (time.Time, bool) {
	y, err := strconv.Atoi(ys)
	if err != nil {
		return time.Time{}, false
	}
	s, ok := seasonOpen[strings.ToLower(season)]
	if !ok {
		return time.Time{}, false
	}
	return time.Date(y, s.month, s.day, openHour, 0, 0, 0, loc), true
}
