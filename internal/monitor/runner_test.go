package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/camprush/camprush/internal/config"
	"github.com/camprush/camprush/internal/db"
	"github.com/camprush/camprush/internal/detect"
	"github.com/camprush/camprush/internal/events"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/store"
)

const (
	openPage   = `<html><body><h1>Summer Camps</h1><a href="/cart" role="button">Register Now</a></body></html>`
	closedPage = `<html><body><p>Registration Closed</p><a href="/x">Register Now</a></body></html>`
)

type fixture struct {
	st     *store.Store
	runner *Runner
	parent *models.Parent
	now    time.Time
}

func newFixture(t *testing.T, fetcher detect.Fetcher) *fixture {
	t.Helper()
	gdb, err := db.Open(config.DBConfig{Path: filepath.Join(t.TempDir(), "monitor.db"), Silent: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st := store.New(gdb)
	p, err := st.CreateParent(context.Background(), store.NewParent{
		Name:     "Dana",
		Phone:    "+15550001111",
		Children: []store.NewChild{{Name: "Ava"}, {Name: "Ben"}},
	})
	if err != nil {
		t.Fatalf("CreateParent: %v", err)
	}
	f := &fixture{
		st:     st,
		runner: NewRunner(logger.Nop(), st, fetcher),
		parent: p,
		now:    time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC),
	}
	f.runner.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) plan(t *testing.T, strategy, detectURL string, openAt *time.Time) *models.RegistrationPlan {
	t.Helper()
	in := store.NewPlan{
		UserID:       f.parent.ID,
		DetectURL:    detectURL,
		ManualOpenAt: openAt,
		Timezone:     "UTC",
		OpenStrategy: strategy,
		Status:       models.PlanMonitoring,
	}
	for _, c := range f.parent.Children {
		in.Children = append(in.Children, store.PlanChild{ChildID: c.ID, Session: "Week 2"})
	}
	plan, err := f.st.CreatePlan(context.Background(), in)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	return plan
}

func signals(t *testing.T, st *store.Store, planID string) []string {
	t.Helper()
	logs, err := st.ListLogs(context.Background(), planID, 0)
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Signal
	}
	return out
}

func TestRunOnceOpensPlan(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := detect.NewMockFetcher(ctrl)
	f := newFixture(t, fetcher)
	ctx := context.Background()

	openAt := f.now.Add(10 * time.Minute)
	plan := f.plan(t, models.StrategyPublished, "https://camps.example.org/summer", &openAt)

	fetcher.EXPECT().Fetch(gomock.Any(), "https://camps.example.org/summer").
		Return(detect.Page{Status: 200, Body: openPage}, nil)

	var hooked []string
	events.OnPlanOpened = func(_ context.Context, p models.RegistrationPlan, created int) {
		if created != 2 {
			t.Errorf("created: want 2, got %d", created)
		}
		hooked = append(hooked, p.ID)
	}
	t.Cleanup(func() { events.OnPlanOpened = nil })

	sum, err := f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum != (Summary{Polled: 1, Total: 1, Opened: 1}) {
		t.Errorf("summary: %+v", sum)
	}

	got, _ := f.st.GetPlan(ctx, plan.ID)
	if got.Status != string(models.PlanActive) {
		t.Errorf("plan status: %s", got.Status)
	}
	regs, _ := f.st.ListRegistrations(ctx, plan.ID)
	if len(regs) != 2 {
		t.Errorf("registrations: want 2, got %d", len(regs))
	}
	if s := signals(t, f.st, plan.ID); strings.Join(s, ",") != "open_detected,registrations_created" {
		t.Errorf("signals: %v", s)
	}
	if len(hooked) != 1 || hooked[0] != plan.ID {
		t.Errorf("OnPlanOpened calls: %v", hooked)
	}
	audit, _ := f.st.ListAudit(ctx, plan.ID)
	if len(audit) != 1 || audit[0].Event != store.AuditPlanOpened {
		t.Errorf("audit: %+v", audit)
	}

	// an active plan is no longer monitored
	f.now = f.now.Add(5 * time.Minute)
	sum, err = f.runner.RunOnce(ctx)
	if err != nil || sum.Total != 0 {
		t.Errorf("second tick: %+v %v", sum, err)
	}
}

func TestRunOnceThrottlesRecentlyCheckedPlan(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := detect.NewMockFetcher(ctrl)
	f := newFixture(t, fetcher)
	ctx := context.Background()

	// 90 minutes out is the 5-minute tier; checked 3 minutes ago
	openAt := f.now.Add(90 * time.Minute)
	plan := f.plan(t, models.StrategyPublished, "https://camps.example.org/a", &openAt)
	if _, err := f.st.AppendLog(ctx, plan.ID, f.now.Add(-3*time.Minute), models.SignalClosedDetected, ""); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}

	sum, err := f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum != (Summary{Skipped: 1, Total: 1}) {
		t.Errorf("summary: %+v", sum)
	}

	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(detect.Page{Status: 200, Body: closedPage}, nil)
	f.now = f.now.Add(2 * time.Minute)
	sum, err = f.runner.RunOnce(ctx)
	if err != nil || sum.Polled != 1 {
		t.Errorf("due tick: %+v %v", sum, err)
	}
	got, _ := f.st.GetPlan(ctx, plan.ID)
	if got.Status != string(models.PlanMonitoring) {
		t.Errorf("closed page must not open the plan, status %s", got.Status)
	}
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := detect.NewMockFetcher(ctrl)
	f := newFixture(t, fetcher)
	ctx := context.Background()

	openAt := f.now.Add(30 * time.Minute)
	broken := f.plan(t, models.StrategyAuto, "https://down.example.org", &openAt)
	limited := f.plan(t, models.StrategyAuto, "https://busy.example.org", &openAt)
	healthy := f.plan(t, models.StrategyAuto, "https://ok.example.org", &openAt)

	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u string) (detect.Page, error) {
		switch u {
		case "https://down.example.org":
			return detect.Page{}, errors.New("connection refused")
		case "https://busy.example.org":
			return detect.Page{Status: 429}, &detect.RateLimitError{Status: 429, RetryAfter: time.Minute}
		}
		return detect.Page{Status: 200, Body: closedPage}, nil
	}).Times(3)

	sum, err := f.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Total != 3 || sum.Polled != 3 || sum.Failed != 2 {
		t.Errorf("summary: %+v", sum)
	}
	if s := signals(t, f.st, broken.ID); len(s) != 1 || s[0] != models.SignalError {
		t.Errorf("broken plan signals: %v", s)
	}
	logs, _ := f.st.ListLogs(ctx, limited.ID, 0)
	if len(logs) != 1 || !strings.Contains(logs[0].Note, "rate limited") {
		t.Errorf("rate limited plan logs: %+v", logs)
	}
	if s := signals(t, f.st, healthy.ID); len(s) != 1 || s[0] != models.SignalClosedDetected {
		t.Errorf("healthy plan signals: %v", s)
	}
}

func TestRunOnceRecordsExtractedOpenTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := detect.NewMockFetcher(ctrl)
	f := newFixture(t, fetcher)
	ctx := context.Background()

	auto := f.plan(t, models.StrategyAuto, "https://camps.example.org/auto", nil)
	published := f.plan(t, models.StrategyPublished, "https://camps.example.org/pub", nil)

	page := detect.Page{Status: 200, Body: `<h2>Registration opens March 1, 2026 at 9:00 AM</h2>`}
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(page, nil).Times(2)

	if _, err := f.runner.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	got, _ := f.st.GetPlan(ctx, auto.ID)
	if got.ManualOpenAt == nil || !got.ManualOpenAt.Equal(want) {
		t.Errorf("auto plan open time: %v", got.ManualOpenAt)
	}
	if s := signals(t, f.st, auto.ID); strings.Join(s, ",") != "closed_detected,time_extracted" {
		t.Errorf("auto plan signals: %v", s)
	}
	pub, _ := f.st.GetPlan(ctx, published.ID)
	if pub.ManualOpenAt != nil {
		t.Error("published plans keep their own open time")
	}
}

func TestRunOnceLogsAreStrictlyIncreasing(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := detect.NewMockFetcher(ctrl)
	f := newFixture(t, fetcher)
	ctx := context.Background()

	openAt := f.now.Add(5 * time.Minute)
	plan := f.plan(t, models.StrategyPublished, "https://camps.example.org/b", &openAt)
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(detect.Page{Status: 200, Body: closedPage}, nil).Times(3)

	for i := 0; i < 3; i++ {
		if _, err := f.runner.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		f.now = f.now.Add(time.Minute)
	}
	logs, _ := f.st.ListLogs(ctx, plan.ID, 0)
	if len(logs) != 3 {
		t.Fatalf("want 3 logs, got %d", len(logs))
	}
	for i := 1; i < len(logs); i++ {
		if !logs[i].At.After(logs[i-1].At) {
			t.Errorf("log %d not after log %d", i, i-1)
		}
	}
}

func TestRunOnceKeepsFastTierWhenTickWritesSeveralRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := detect.NewMockFetcher(ctrl)
	f := newFixture(t, fetcher)
	ctx := context.Background()

	// each tick writes closed_detected and time_extracted
	openAt := f.now.Add(10 * time.Minute)
	plan := f.plan(t, models.StrategyPublished, "https://camps.example.org/c", &openAt)
	page := detect.Page{Status: 200, Body: `<p>Registration opens March 3, 2026 at 9:00 am</p>`}
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(page, nil).Times(3)

	for i := 0; i < 3; i++ {
		sum, err := f.runner.RunOnce(ctx)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if sum.Polled != 1 || sum.Skipped != 0 {
			t.Errorf("tick %d: want a poll every minute, got %+v", i, sum)
		}
		f.now = f.now.Add(time.Minute)
	}
	if s := signals(t, f.st, plan.ID); len(s) != 6 {
		t.Errorf("signals: %v", s)
	}
}
