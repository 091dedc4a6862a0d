// Package monitor runs the poll tick: for every monitored plan it asks the
// scheduler whether a check is due, fetches the detection page and acts on
// an open registration.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/camprush/camprush/internal/detect"
	"github.com/camprush/camprush/internal/events"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/schedule"
	"github.com/camprush/camprush/internal/store"
)

type Summary struct {
	Polled  int `json:"polled"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
	Opened  int `json:"opened"`
	Failed  int `json:"failed"`
}

type Runner struct {
	log     *logger.Logger
	store   *store.Store
	fetcher detect.Fetcher
	now     func() time.Time

	// ticks never overlap within a process
	mu sync.Mutex
}

func NewRunner(log *logger.Logger, st *store.Store, fetcher detect.Fetcher) *Runner {
	return &Runner{
		log:     log.With("component", "monitor"),
		store:   st,
		fetcher: fetcher,
		now:     time.Now,
	}
}

// RunOnce processes every monitored plan sequentially with a single now.
// A failing plan is logged and the batch carries on; only a failure to list
// the plans is returned.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	plans, err := r.store.ListMonitored(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list monitored plans: %w", err)
	}

	sum := Summary{Total: len(plans)}
	for _, plan := range plans {
		if ctx.Err() != nil {
			break
		}
		res, err := r.poll(ctx, plan, now)
		switch res {
		case resultSkipped:
			sum.Skipped++
		case resultOpened:
			sum.Polled++
			sum.Opened++
		default:
			sum.Polled++
		}
		if err != nil {
			sum.Failed++
			r.log.Warn("plan poll failed", "plan_id", plan.ID, "error", err)
			r.appendLog(ctx, plan.ID, now, models.SignalError, err.Error())
		}
	}

	r.log.Info("monitor tick", "total", sum.Total, "polled", sum.Polled, "skipped", sum.Skipped, "opened", sum.Opened, "failed", sum.Failed)
	return sum, ctx.Err()
}

type pollResult int

const (
	resultPolled pollResult = iota
	resultSkipped
	resultOpened
)

func (r *Runner) poll(ctx context.Context, plan models.RegistrationPlan, now time.Time) (pollResult, error) {
	if plan.DetectURL == nil || *plan.DetectURL == "" {
		return resultSkipped, errors.New("plan has no detect url")
	}

	last, err := r.store.LastCheck(ctx, plan.ID)
	if err != nil {
		return resultSkipped, fmt.Errorf("last check: %w", err)
	}
	d := schedule.Schedule(plan, last, now)
	if !d.ShouldPoll {
		r.log.Debug("poll skipped", "plan_id", plan.ID, "reason", d.Reason, "next_check_at", d.NextCheckAt)
		return resultSkipped, nil
	}

	page, err := r.fetcher.Fetch(ctx, *plan.DetectURL)
	if err != nil {
		var rl *detect.RateLimitError
		if errors.As(err, &rl) {
			return resultPolled, fmt.Errorf("provider rate limited (status %d, retry after %s)", rl.Status, rl.RetryAfter)
		}
		return resultPolled, fmt.Errorf("fetch: %w", err)
	}

	res := detect.DetectIn(page, schedule.PlanLocation(plan))
	if !res.Open {
		r.appendLog(ctx, plan.ID, now, models.SignalClosedDetected, fmt.Sprintf("status=%d negative=%v", page.Status, res.Negative))
		if res.OpensAt != nil {
			r.recordExtractedTime(ctx, plan, now, *res.OpensAt)
		}
		return resultPolled, nil
	}

	r.appendLog(ctx, plan.ID, now, models.SignalOpenDetected,
		fmt.Sprintf("status=%d positive=%v form=%v button=%v", page.Status, res.Positive, res.FormSignal, res.ButtonSignal))
	return resultOpened, r.open(ctx, plan, now)
}

func (r *Runner) recordExtractedTime(ctx context.Context, plan models.RegistrationPlan, now, at time.Time) {
	r.appendLog(ctx, plan.ID, now, models.SignalTimeExtracted, at.Format(time.RFC3339))
	if plan.OpenStrategy != models.StrategyAuto || plan.ManualOpenAt != nil {
		return
	}
	ok, err := r.store.SetManualOpenAt(ctx, plan.ID, at)
	if err != nil {
		r.log.Warn("store extracted open time", "plan_id", plan.ID, "error", err)
		return
	}
	if !ok {
		return
	}
	r.log.Info("open time extracted", "plan_id", plan.ID, "opens_at", at)
	if events.OnOpenTimeFound != nil {
		events.OnOpenTimeFound(ctx, plan, at)
	}
}

// open moves the plan to active. Only the caller whose conditional update
// wins creates registrations and notifies.
func (r *Runner) open(ctx context.Context, plan models.RegistrationPlan, now time.Time) error {
	err := r.store.TransitionPlan(ctx, plan.ID, models.PlanMonitoring, models.PlanActive)
	if errors.Is(err, store.ErrStaleTransition) {
		r.log.Info("plan already moved on", "plan_id", plan.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("activate plan: %w", err)
	}
	plan.Status = string(models.PlanActive)

	created, err := r.store.CreateRegistrationsForPlan(ctx, plan.ID)
	if err != nil {
		return fmt.Errorf("create registrations: %w", err)
	}
	r.appendLog(ctx, plan.ID, now, models.SignalRegistrationsCreated, fmt.Sprintf("created=%d", created))

	if err := r.store.Audit(ctx, store.AuditEvent{
		Event:  store.AuditPlanOpened,
		PlanID: plan.ID,
		UserID: plan.UserID,
		Detail: map[string]any{"detect_url": *plan.DetectURL, "registrations_created": created},
	}); err != nil {
		r.log.Warn("audit write failed", "event", store.AuditPlanOpened, "error", err)
	}

	if events.OnPlanOpened != nil {
		events.OnPlanOpened(ctx, plan, created)
	}
	return nil
}

func (r *Runner) appendLog(ctx context.Context, planID string, at time.Time, signal, note string) {
	if _, err := r.store.AppendLog(ctx, planID, at, signal, note); err != nil {
		r.log.Error("append detection log", "plan_id", planID, "signal", signal, "error", err)
	}
}
