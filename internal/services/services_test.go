package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/camprush/camprush/internal/barriers"
	"github.com/camprush/camprush/internal/config"
	"github.com/camprush/camprush/internal/db"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := db.Open(config.DBConfig{Path: filepath.Join(t.TempDir(), "services.db"), Silent: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return store.New(gdb)
}

func TestNormPhone(t *testing.T) {
	tests := []struct {
		in, cc, want string
	}{
		{"(555) 123-4567", "1", "+15551234567"},
		{"1-555-123-4567", "1", "+15551234567"},
		{"+1 555.123.4567", "1", "+15551234567"},
		{"0044 7700 900123", "1", "+447700900123"},
		{"07700 900123", "44", "+447700900123"},
		{"0811-234-567", "62", "+62811234567"},
		{"call me", "1", ""},
		{"12", "1", ""},
		{"", "1", ""},
	}
	for _, tt := range tests {
		if got := NormPhone(tt.in, tt.cc); got != tt.want {
			t.Errorf("NormPhone(%q, %q) = %q, want %q", tt.in, tt.cc, got, tt.want)
		}
	}
}

func TestNormEmail(t *testing.T) {
	if e, ok := NormEmail("  Dana@Example.COM "); !ok || e != "dana@example.com" {
		t.Errorf("got %q %v", e, ok)
	}
	if _, ok := NormEmail("not-an-email"); ok {
		t.Error("expected invalid")
	}
	if e, ok := NormEmail(""); !ok || e != "" {
		t.Error("empty email is optional")
	}
}

func TestFindParentByAny(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p, err := st.CreateParent(ctx, store.NewParent{Name: "Dana", Phone: "+15551234567"})
	if err != nil {
		t.Fatalf("CreateParent: %v", err)
	}
	for _, in := range []string{"555-123-4567", "+1 (555) 123 4567", "15551234567"} {
		got, err := FindParentByAny(st.DB(), in, "1")
		if err != nil || got.ID != p.ID {
			t.Errorf("FindParentByAny(%q): %v %v", in, got, err)
		}
	}
	if _, err := FindParentByAny(st.DB(), "555-999-0000", "1"); !errors.Is(err, ErrParentNotFound) {
		t.Errorf("want ErrParentNotFound, got %v", err)
	}
}

func newAnalysisService(t *testing.T, analyzer barriers.Analyzer) (*AnalysisService, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	planner := barriers.NewPlanner(logger.Nop(), barriers.DefaultClassifier(), analyzer)
	return NewAnalysisService(logger.Nop(), st, planner, 24*time.Hour), st
}

func TestAnalyzeCachesAndRefreshes(t *testing.T) {
	svc, _ := newAnalysisService(t, nil)
	ctx := context.Background()
	req := AnalysisRequest{ProviderURL: "https://register.ymca.example.org/camps", SessionID: "s-1"}

	first, err := svc.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first.Cached || first.Provider != "ymca" || first.Certainty != barriers.CertaintyEstimated {
		t.Fatalf("unexpected first analysis %+v", first)
	}
	if first.TotalBarriers != len(first.Barriers) || len(first.Flow) == 0 {
		t.Errorf("metrics not filled: %+v", first.Metrics)
	}

	second, err := svc.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze (cached): %v", err)
	}
	if !second.Cached || second.TotalBarriers != first.TotalBarriers || second.RecommendedStrategy != first.RecommendedStrategy {
		t.Errorf("expected cached copy, got %+v", second)
	}

	req.ForceRefresh = true
	third, err := svc.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze (forced): %v", err)
	}
	if third.Cached {
		t.Error("force_refresh must bypass the cache")
	}
}

func TestAnalyzeExpiredCacheIsRecomputed(t *testing.T) {
	svc, _ := newAnalysisService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	req := AnalysisRequest{ProviderURL: "https://camps.example.org", SessionID: "s-2"}
	if _, err := svc.Analyze(ctx, req); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	got, err := svc.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Cached {
		t.Error("analysis older than the TTL should be recomputed")
	}
}

func TestAnalyzeDegradesWhenAIFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := barriers.NewMockAnalyzer(ctrl)
	m.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, errors.New("vision timeout")).Times(2)

	svc, _ := newAnalysisService(t, m)
	req := AnalysisRequest{ProviderURL: "https://camps.example.org", SessionID: "s-3", UseAI: true}
	got, err := svc.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !got.Degraded || got.Notice == "" || len(got.Barriers) == 0 {
		t.Errorf("expected degraded baseline, got %+v", got)
	}
	// a degraded cache entry does not satisfy another AI request
	again, err := svc.Analyze(context.Background(), req)
	if err != nil || again.Cached {
		t.Errorf("degraded entry reused: %+v %v", again, err)
	}
}

func TestAnalyzeAIRequestSkipsBaselineCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := barriers.NewMockAnalyzer(ctrl)
	conf := 0.9
	m.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return([]barriers.Barrier{
		{Type: barriers.TypeCaptcha, Stage: barriers.StageRegistration, CaptchaLikelihood: 0.85, AIConfidence: &conf},
	}, nil).Times(1)

	svc, _ := newAnalysisService(t, m)
	ctx := context.Background()
	req := AnalysisRequest{ProviderURL: "https://register.ymca.example.org/camps", SessionID: "s-5"}

	base, err := svc.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze (baseline): %v", err)
	}
	if base.Enriched {
		t.Error("baseline analysis marked enriched")
	}

	req.UseAI = true
	ai, err := svc.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("Analyze (ai): %v", err)
	}
	if ai.Cached || !ai.Enriched || ai.Degraded {
		t.Errorf("ai request answered from baseline: %+v", ai)
	}
	if len(ai.Barriers) != len(base.Barriers)+1 {
		t.Errorf("want %d barriers after enrichment, got %d", len(base.Barriers)+1, len(ai.Barriers))
	}

	// the enriched row now serves both kinds of request
	again, err := svc.Analyze(ctx, req)
	if err != nil || !again.Cached || !again.Enriched {
		t.Errorf("enriched row not reused: %+v %v", again, err)
	}
	req.UseAI = false
	plain, err := svc.Analyze(ctx, req)
	if err != nil || !plain.Cached || len(plain.Barriers) != len(ai.Barriers) {
		t.Errorf("baseline request after enrichment: %+v %v", plain, err)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	svc, _ := newAnalysisService(t, nil)
	ctx := context.Background()
	for _, req := range []AnalysisRequest{
		{ProviderURL: "", SessionID: "s"},
		{ProviderURL: "https://camps.example.org", SessionID: " "},
		{ProviderURL: "not a url", SessionID: "s"},
	} {
		if _, err := svc.Analyze(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: want ErrInvalidRequest, got %v", req, err)
		}
	}
}

type slowAnalyzer struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (s *slowAnalyzer) Analyze(ctx context.Context, _ string) ([]barriers.Barrier, error) {
	s.calls.Add(1)
	<-s.gate
	return nil, nil
}

func TestAnalyzeCoalescesConcurrentRequests(t *testing.T) {
	a := &slowAnalyzer{gate: make(chan struct{})}
	svc, _ := newAnalysisService(t, a)
	req := AnalysisRequest{ProviderURL: "https://camps.example.org", SessionID: "s-4", UseAI: true}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Analyze(context.Background(), req); err != nil {
				t.Errorf("Analyze: %v", err)
			}
		}()
	}
	// let the callers pile up on the in-flight request
	time.Sleep(100 * time.Millisecond)
	close(a.gate)
	wg.Wait()

	if n := a.calls.Load(); n != 1 {
		t.Errorf("analyzer called %d times, want 1", n)
	}
}

func TestVerifyAdvancesCertainty(t *testing.T) {
	svc, _ := newAnalysisService(t, nil)
	ctx := context.Background()
	req := AnalysisRequest{ProviderURL: "https://camps.example.org", SessionID: "s-5"}
	if _, err := svc.Analyze(ctx, req); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if _, err := svc.Verify(ctx, "s-5", req.ProviderURL, barriers.EvidenceHumanSignoff); !errors.Is(err, barriers.ErrCertaintyTransition) {
		t.Fatalf("skip to confirmed: want ErrCertaintyTransition, got %v", err)
	}
	v, err := svc.Verify(ctx, "s-5", req.ProviderURL, barriers.EvidenceLiveInspection)
	if err != nil || v.Certainty != barriers.CertaintyVerified {
		t.Fatalf("verify: %+v %v", v, err)
	}
	c, err := svc.Verify(ctx, "s-5", req.ProviderURL, barriers.EvidenceHumanSignoff)
	if err != nil || c.Certainty != barriers.CertaintyConfirmed {
		t.Fatalf("confirm: %+v %v", c, err)
	}
	if ttl := c.ExpiresAt.Sub(svc.now()); ttl < 6*24*time.Hour {
		t.Errorf("confirmed analysis should live about a week, got %s", ttl)
	}

	cached, err := svc.Analyze(ctx, req)
	if err != nil || !cached.Cached || cached.Certainty != barriers.CertaintyConfirmed {
		t.Errorf("cached certainty lost: %+v %v", cached, err)
	}
}
