package handlers

import (
	"net/http"
	"strings"

	"github.com/camprush/camprush/internal/barriers"
	svc "github.com/camprush/camprush/internal/services"
)

// BarriersAnalyze predicts the barriers of a provider's signup flow. AI
// enrichment failures degrade to the provider baseline and still answer 200.
func (h *Handlers) BarriersAnalyze(w http.ResponseWriter, r *http.Request) {
	var req svc.AnalysisRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.analysis.Analyze(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type certaintyReq struct {
	SessionID   string `json:"session_id"`
	ProviderURL string `json:"provider_url"`
	Evidence    string `json:"evidence"`
}

// BarriersCertainty records evidence for a cached analysis: a live inspection
// or accepted research verifies it, a human sign-off confirms it.
func (h *Handlers) BarriersCertainty(w http.ResponseWriter, r *http.Request) {
	var req certaintyReq
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.ProviderURL = strings.TrimSpace(req.ProviderURL)
	ev := barriers.Evidence(strings.TrimSpace(req.Evidence))
	switch ev {
	case barriers.EvidenceLiveInspection, barriers.EvidenceUserResearch, barriers.EvidenceHumanSignoff:
	default:
		h.fail(w, r, badRequest("evidence must be live_inspection, user_research or human_signoff"))
		return
	}
	if req.SessionID == "" || req.ProviderURL == "" {
		h.fail(w, r, badRequest("session_id and provider_url are required"))
		return
	}
	out, err := h.analysis.Verify(r.Context(), req.SessionID, req.ProviderURL, ev)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
