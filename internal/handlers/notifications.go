package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camprush/camprush/internal/notify"
)

type dispatchReq struct {
	UserID            uint           `json:"user_id"`
	TemplateID        string         `json:"template_id"`
	Urgency           string         `json:"urgency"`
	Channel           string         `json:"channel"`
	Data              map[string]any `json:"data"`
	AutoEscalation    bool           `json:"auto_escalation"`
	EscalationDelayMS int64          `json:"escalation_delay_ms"`
	FallbackStrategy  string         `json:"fallback_strategy"`
}

// NotificationDispatch sends a notification. A failed first delivery is not
// an error for the caller: the message is tracked and the 60s checkpoint
// falls back to another channel, so the response is 202 with the failure.
func (h *Handlers) NotificationDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchReq
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.UserID == 0 || req.TemplateID == "" {
		h.fail(w, r, badRequest("user_id and template_id are required"))
		return
	}
	if req.EscalationDelayMS < 0 {
		h.fail(w, r, badRequest("escalation_delay_ms must not be negative"))
		return
	}
	switch req.FallbackStrategy {
	case "", notify.FallbackStaggered, notify.FallbackImmediate:
	default:
		h.fail(w, r, badRequest("fallback_strategy must be staggered or immediate"))
		return
	}

	d, err := h.notifier.Send(r.Context(), notify.Message{
		UserID:           req.UserID,
		TemplateID:       req.TemplateID,
		Urgency:          notify.Urgency(req.Urgency),
		Channel:          notify.Channel(req.Channel),
		Data:             req.Data,
		AutoEscalation:   req.AutoEscalation,
		EscalationDelay:  time.Duration(req.EscalationDelayMS) * time.Millisecond,
		FallbackStrategy: req.FallbackStrategy,
	})
	if err != nil && d.MessageID == "" {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		h.log.Warn("notification delivery failed", "message_id", d.MessageID, "channel", d.Channel, "error", err)
		writeJSON(w, http.StatusAccepted, d)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type engagementJSON struct {
	MessageID string         `json:"message_id"`
	Channel   notify.Channel `json:"channel"`
	Urgency   notify.Urgency `json:"urgency"`
	State     string         `json:"state"`
	Delivered bool           `json:"delivered"`
	Read      bool           `json:"read"`
	Responded bool           `json:"responded"`
}

func engagementView(rec notify.Record) engagementJSON {
	return engagementJSON{
		MessageID: rec.MessageID,
		Channel:   rec.Channel,
		Urgency:   rec.Urgency,
		State:     rec.State(),
		Delivered: rec.Delivered,
		Read:      rec.Read,
		Responded: rec.Responded,
	}
}

// NotificationEvent records a delivery, read or response for a message.
func (h *Handlers) NotificationEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event string `json:"event"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	ev, ok := notify.ParseEvent(req.Event)
	if !ok || ev == notify.EventSent {
		h.fail(w, r, badRequest("event must be delivered, read or responded"))
		return
	}
	rec, err := h.notifier.Record(r.Context(), chi.URLParam(r, "id"), ev)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, engagementView(rec))
}

func (h *Handlers) NotificationStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.notifier.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, engagementView(rec))
}
