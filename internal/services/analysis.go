package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/camprush/camprush/internal/barriers"
	"github.com/camprush/camprush/internal/flow"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/store"
)

var ErrInvalidRequest = errors.New("invalid analysis request")

type AnalysisRequest struct {
	ProviderURL  string `json:"provider_url"`
	SessionID    string `json:"session_id"`
	UseAI        bool   `json:"use_ai_analysis"`
	ForceRefresh bool   `json:"force_refresh"`
}

// Analysis is the barrier analysis handed back to the front end.
type Analysis struct {
	Barriers []barriers.Barrier `json:"barriers"`
	flow.Metrics

	Provider  string             `json:"provider"`
	Certainty barriers.Certainty `json:"certainty"`
	Degraded  bool               `json:"degraded"`
	Enriched  bool               `json:"enriched"`
	Notice    string             `json:"notice,omitempty"`
	Cached    bool               `json:"cached"`
	ExpiresAt time.Time          `json:"expires_at"`
}

const degradedNotice = "Live page analysis is unavailable right now; showing the usual steps for this provider."

// AnalysisService caches barrier analyses per session and provider and
// coalesces identical requests that arrive together.
type AnalysisService struct {
	log     *logger.Logger
	store   *store.Store
	planner *barriers.Planner
	baseTTL time.Duration
	now     func() time.Time

	group singleflight.Group
}

func NewAnalysisService(log *logger.Logger, st *store.Store, planner *barriers.Planner, baseTTL time.Duration) *AnalysisService {
	if baseTTL <= 0 {
		baseTTL = 24 * time.Hour
	}
	return &AnalysisService{
		log:     log.With("component", "barrier_analysis"),
		store:   st,
		planner: planner,
		baseTTL: baseTTL,
		now:     time.Now,
	}
}

func (a *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	req.ProviderURL = strings.TrimSpace(req.ProviderURL)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.ProviderURL == "" || req.SessionID == "" {
		return nil, fmt.Errorf("%w: provider_url and session_id are required", ErrInvalidRequest)
	}

	if !req.ForceRefresh {
		if cached, ok := a.cached(ctx, req); ok {
			return cached, nil
		}
	}

	key := fmt.Sprintf("%s|%s|%t", req.SessionID, req.ProviderURL, req.UseAI)
	v, err, _ := a.group.Do(key, func() (any, error) {
		return a.compute(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Analysis), nil
}

func (a *AnalysisService) cached(ctx context.Context, req AnalysisRequest) (*Analysis, bool) {
	row, err := a.store.FreshRequirement(ctx, req.SessionID, req.ProviderURL, a.now())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.log.Warn("analysis cache read failed", "session_id", req.SessionID, "error", err)
		}
		return nil, false
	}
	// a baseline row, degraded or not, cannot answer a request for enrichment
	if req.UseAI && !row.Enriched {
		return nil, false
	}
	out, err := decodeRequirement(row)
	if err != nil {
		a.log.Warn("analysis cache row unreadable", "session_id", req.SessionID, "error", err)
		return nil, false
	}
	out.Cached = true
	return out, true
}

func (a *AnalysisService) compute(ctx context.Context, req AnalysisRequest) (*Analysis, error) {
	list, provider, outcome := a.planner.Plan(ctx, req.ProviderURL, req.UseAI)
	if outcome.Fatal() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, outcome.Reason)
	}

	now := a.now()
	out := &Analysis{
		Barriers:  list,
		Metrics:   flow.Aggregate(list),
		Provider:  provider,
		Certainty: barriers.CertaintyEstimated,
		Degraded:  outcome.Degraded(),
		Enriched:  req.UseAI && outcome.Kind == barriers.OutcomeOK,
		ExpiresAt: now.Add(barriers.CertaintyEstimated.TTL(a.baseTTL)),
	}
	if out.Degraded {
		out.Notice = degradedNotice
	}

	if err := a.save(ctx, req.SessionID, req.ProviderURL, out); err != nil {
		a.log.Warn("analysis cache write failed", "session_id", req.SessionID, "error", err)
	}
	if err := a.store.Audit(ctx, store.AuditEvent{
		Event:     store.AuditBarrierAnalysis,
		SessionID: req.SessionID,
		Detail: map[string]any{
			"provider":       provider,
			"provider_url":   req.ProviderURL,
			"use_ai":         req.UseAI,
			"outcome":        string(outcome.Kind),
			"reason":         outcome.Reason,
			"total_barriers": out.TotalBarriers,
		},
	}); err != nil {
		a.log.Warn("audit write failed", "event", store.AuditBarrierAnalysis, "error", err)
	}
	return out, nil
}

// Verify advances the certainty of a cached analysis and stretches its
// lifetime to match.
func (a *AnalysisService) Verify(ctx context.Context, sessionID, providerURL string, ev barriers.Evidence) (*Analysis, error) {
	row, err := a.store.FreshRequirement(ctx, sessionID, providerURL, a.now())
	if err != nil {
		return nil, err
	}
	cur, ok := barriers.ParseCertainty(row.Certainty)
	if !ok {
		cur = barriers.CertaintyEstimated
	}
	next, err := cur.Advance(ev)
	if err != nil {
		return nil, err
	}
	out, err := decodeRequirement(row)
	if err != nil {
		return nil, err
	}
	out.Certainty = next
	out.ExpiresAt = a.now().Add(next.TTL(a.baseTTL))
	if err := a.save(ctx, sessionID, providerURL, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AnalysisService) save(ctx context.Context, sessionID, providerURL string, an *Analysis) error {
	list, err := json.Marshal(an.Barriers)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(cachedMetrics{Metrics: an.Metrics, Provider: an.Provider})
	if err != nil {
		return err
	}
	return a.store.SaveRequirement(ctx, &models.SessionRequirement{
		SessionID:   sessionID,
		ProviderURL: providerURL,
		Barriers:    list,
		Metrics:     meta,
		Certainty:   string(an.Certainty),
		Degraded:    an.Degraded,
		Enriched:    an.Enriched,
		ExpiresAt:   an.ExpiresAt,
	})
}

type cachedMetrics struct {
	flow.Metrics
	Provider string `json:"provider"`
}

func decodeRequirement(row *models.SessionRequirement) (*Analysis, error) {
	var list []barriers.Barrier
	if err := json.Unmarshal(row.Barriers, &list); err != nil {
		return nil, fmt.Errorf("barriers: %w", err)
	}
	var meta cachedMetrics
	if err := json.Unmarshal(row.Metrics, &meta); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	cert, ok := barriers.ParseCertainty(row.Certainty)
	if !ok {
		cert = barriers.CertaintyEstimated
	}
	out := &Analysis{
		Barriers:  list,
		Metrics:   meta.Metrics,
		Provider:  meta.Provider,
		Certainty: cert,
		Degraded:  row.Degraded,
		Enriched:  row.Enriched,
		ExpiresAt: row.ExpiresAt,
	}
	if out.Degraded {
		out.Notice = degradedNotice
	}
	return out, nil
}
