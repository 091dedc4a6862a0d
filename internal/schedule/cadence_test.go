package schedule

import (
	"testing"
	"time"

	"github.com/camprush/camprush/internal/models"
)

func planOpeningAt(t time.Time) models.RegistrationPlan {
	return models.RegistrationPlan{ManualOpenAt: &t}
}

func TestIntervalTiers(t *testing.T) {
	target := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := newWindow(target, preciseMargin, StrategyExplicit)

	tests := []struct {
		name string
		now  time.Time
		want time.Duration
	}{
		{"three days out", target.Add(-72 * time.Hour), SlowInterval},
		{"exactly 48h out", target.Add(-48 * time.Hour), MediumInterval},
		{"90 minutes out", target.Add(-90 * time.Minute), MediumInterval},
		{"exactly 60 minutes out", target.Add(-60 * time.Minute), FastInterval},
		{"at target", target, FastInterval},
		{"60 minutes after", target.Add(60 * time.Minute), FastInterval},
		{"90 minutes after", target.Add(90 * time.Minute), MediumInterval},
		{"just under 2h after window end", w.End.Add(119 * time.Minute), MediumInterval},
		{"2h after window end", w.End.Add(120 * time.Minute), SlowInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Interval(w, tt.now)
			if got != tt.want {
				t.Errorf("want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIntervalSeasonalGapUsesMediumTier(t *testing.T) {
	target := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w := newWindow(target, seasonalMargin, StrategySeasonal)

	got, _ := Interval(w, target.Add(10*time.Hour))
	if got != MediumInterval {
		t.Errorf("inside a wide window after the fast band: want %s, got %s", MediumInterval, got)
	}
}

func TestIntervalMonotonicInProximity(t *testing.T) {
	target := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	windows := []TargetWindow{
		newWindow(target, preciseMargin, StrategyExplicit),
		newWindow(target, seasonalMargin, StrategySeasonal),
	}

	for _, w := range windows {
		for _, sign := range []time.Duration{-1, 1} {
			prev := time.Duration(0)
			for m := 0; m <= 6*24*60; m += 7 {
				now := target.Add(sign * time.Duration(m) * time.Minute)
				got, _ := Interval(w, now)
				if got < prev {
					t.Fatalf("%s window, offset %dmin (sign %d): interval %s shrank from %s moving away from target",
						w.Strategy, m, sign, got, prev)
				}
				prev = got
			}
		}
	}
}

func TestSchedulePollSuppression(t *testing.T) {
	now := time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
	plan := planOpeningAt(now.Add(10 * time.Hour)) // 5-minute tier

	last := now.Add(-3 * time.Minute)
	d := Schedule(plan, &last, now)
	if d.ShouldPoll {
		t.Fatal("3 minutes into a 5 minute interval should not poll")
	}
	if !d.NextCheckAt.Equal(last.Add(5 * time.Minute)) {
		t.Errorf("NextCheckAt: want %s, got %s", last.Add(5*time.Minute), d.NextCheckAt)
	}

	last = now.Add(-5 * time.Minute)
	d = Schedule(plan, &last, now)
	if !d.ShouldPoll {
		t.Fatal("a full interval elapsed; should poll")
	}
	if !d.NextCheckAt.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("NextCheckAt: want %s, got %s", now.Add(5*time.Minute), d.NextCheckAt)
	}
}

func TestScheduleFirstCheckAlwaysPolls(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Schedule(planOpeningAt(now.Add(30*24*time.Hour)), nil, now)
	if !d.ShouldPoll {
		t.Fatal("never-polled plan should poll")
	}
	if d.Interval != SlowInterval {
		t.Errorf("interval: want %s, got %s", SlowInterval, d.Interval)
	}
}

// TestScheduleTierTransitionAtSixtyMinutes walks a plan opening 90 minutes
// from now through the boundary into the one-minute tier.
func TestScheduleTierTransitionAtSixtyMinutes(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	plan := planOpeningAt(now.Add(90 * time.Minute))

	first := Schedule(plan, nil, now)
	if first.Interval != MediumInterval {
		t.Fatalf("at 90min out: want %s, got %s", MediumInterval, first.Interval)
	}
	if first.MinutesUntilTarget != 90 {
		t.Errorf("MinutesUntilTarget: want 90, got %v", first.MinutesUntilTarget)
	}

	last := now
	later := Schedule(plan, &last, now.Add(35*time.Minute))
	if later.Interval != FastInterval {
		t.Fatalf("at 55min out: want %s, got %s", FastInterval, later.Interval)
	}
	if !later.ShouldPoll {
		t.Error("35 minutes since last check exceeds the 1 minute tier")
	}

	edge := Schedule(plan, &last, now.Add(30*time.Minute))
	if edge.Interval != FastInterval {
		t.Errorf("at exactly 60min out: want %s, got %s", FastInterval, edge.Interval)
	}
	before := Schedule(plan, &last, now.Add(29*time.Minute))
	if before.Interval != MediumInterval {
		t.Errorf("at 61min out: want %s, got %s", MediumInterval, before.Interval)
	}
}
