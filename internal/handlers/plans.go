package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/schedule"
	"github.com/camprush/camprush/internal/store"
)

type planChildJSON struct {
	ChildID uint   `json:"child_id"`
	Session string `json:"session"`
}

type planJSON struct {
	ID           string          `json:"id"`
	UserID       uint            `json:"user_id"`
	DetectURL    string          `json:"detect_url,omitempty"`
	ProviderURL  string          `json:"provider_url,omitempty"`
	ManualOpenAt *time.Time      `json:"manual_open_at,omitempty"`
	Timezone     string          `json:"timezone,omitempty"`
	OpenStrategy string          `json:"open_strategy"`
	Status       string          `json:"status"`
	Children     []planChildJSON `json:"children"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func planView(p *models.RegistrationPlan) planJSON {
	v := planJSON{
		ID:           p.ID,
		UserID:       p.UserID,
		ProviderURL:  p.ProviderURL,
		ManualOpenAt: p.ManualOpenAt,
		Timezone:     p.Timezone,
		OpenStrategy: p.OpenStrategy,
		Status:       p.Status,
		Children:     []planChildJSON{},
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.DetectURL != nil {
		v.DetectURL = *p.DetectURL
	}
	for _, c := range p.Children {
		v.Children = append(v.Children, planChildJSON{ChildID: c.ChildID, Session: c.Session})
	}
	return v
}

type createPlanReq struct {
	UserID       uint            `json:"user_id"`
	DetectURL    string          `json:"detect_url"`
	ProviderURL  string          `json:"provider_url"`
	ManualOpenAt *time.Time      `json:"manual_open_at"`
	Timezone     string          `json:"timezone"`
	OpenStrategy string          `json:"open_strategy"`
	Status       string          `json:"status"`
	Children     []planChildJSON `json:"children"`
}

func (h *Handlers) PlanCreate(w http.ResponseWriter, r *http.Request) {
	var req createPlanReq
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.UserID == 0 {
		h.fail(w, r, badRequest("user_id is required"))
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			h.fail(w, r, badRequest("unknown timezone %q", req.Timezone))
			return
		}
	}
	if _, err := h.store.GetParent(r.Context(), req.UserID); err != nil {
		h.fail(w, r, err)
		return
	}

	in := store.NewPlan{
		UserID:       req.UserID,
		DetectURL:    req.DetectURL,
		ProviderURL:  req.ProviderURL,
		ManualOpenAt: req.ManualOpenAt,
		Timezone:     req.Timezone,
		OpenStrategy: req.OpenStrategy,
		Status:       models.PlanStatus(req.Status),
	}
	for _, c := range req.Children {
		in.Children = append(in.Children, store.PlanChild{ChildID: c.ChildID, Session: c.Session})
	}
	plan, err := h.store.CreatePlan(r.Context(), in)
	if err != nil {
		// CreatePlan only fails on input for a known owner
		h.fail(w, r, badRequest("%v", err))
		return
	}
	writeJSON(w, http.StatusCreated, planView(plan))
}

func (h *Handlers) PlanGet(w http.ResponseWriter, r *http.Request) {
	plan, err := h.store.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planView(plan))
}

type statusReq struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PlanStatus moves a plan between statuses. The caller names the status it
// expects the plan to be in; a plan that moved on in the meantime gets 409.
func (h *Handlers) PlanStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	from, to := models.PlanStatus(req.From), models.PlanStatus(req.To)
	if !from.Valid() || !to.Valid() {
		h.fail(w, r, badRequest("from and to must be plan statuses"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.TransitionPlan(r.Context(), id, from, to); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.store.Audit(r.Context(), store.AuditEvent{
		Event:  store.AuditPlanTransition,
		PlanID: id,
		Detail: map[string]any{"from": from, "to": to},
	})
	if err != nil {
		h.log.Warn("audit write failed", "plan_id", id, "error", err)
	}
	plan, err := h.store.GetPlan(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planView(plan))
}

// PlanSchedule shows the current target window and what the next tick
// would do for the plan.
func (h *Handlers) PlanSchedule(w http.ResponseWriter, r *http.Request) {
	plan, err := h.store.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	last, err := h.store.LastCheck(r.Context(), plan.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	d := schedule.Schedule(*plan, last, h.now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":          plan.ID,
		"last_check_at":    last,
		"should_poll":      d.ShouldPoll,
		"interval_seconds": int(d.Interval.Seconds()),
		"next_check_at":    d.NextCheckAt,
		"reason":           d.Reason,
		"minutes_until":    d.MinutesUntilTarget,
		"window":           d.Window,
	})
}

type logJSON struct {
	At     time.Time `json:"at"`
	Signal string    `json:"signal"`
	Note   string    `json:"note,omitempty"`
}

func (h *Handlers) PlanLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetPlan(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.fail(w, r, badRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, 1000)
	}
	rows, err := h.store.ListLogs(r.Context(), id, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]logJSON, 0, len(rows))
	for _, l := range rows {
		out = append(out, logJSON{At: l.At, Signal: l.Signal, Note: l.Note})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan_id": id, "logs": out})
}
