package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camprush/camprush/internal/assist"
	"github.com/camprush/camprush/internal/barriers"
	"github.com/camprush/camprush/internal/models"
)

type tokenJSON struct {
	Token       string         `json:"token"`
	SessionID   string         `json:"session_id"`
	BarrierType string         `json:"barrier_type"`
	ExpiresAt   time.Time      `json:"expires_at"`
	UsedAt      *time.Time     `json:"used_at,omitempty"`
	HandoffURL  string         `json:"handoff_url,omitempty"`
	QRURL       string         `json:"qr_url,omitempty"`
	Request     assist.Request `json:"request"`
}

func (h *Handlers) tokenView(tok *models.ApprovalToken) tokenJSON {
	v := tokenJSON{
		Token:       tok.Token,
		SessionID:   tok.SessionID,
		BarrierType: tok.BarrierType,
		ExpiresAt:   tok.ExpiresAt,
		UsedAt:      tok.UsedAt,
	}
	if req, ok := h.desk.Status(tok.SessionID); ok {
		v.Request = req
	}
	return v
}

// AssistIssue hands a barrier to the parent: it queues the request and
// returns a short-lived approval token with its hand-off links.
func (h *Handlers) AssistIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID   string `json:"session_id"`
		BarrierType string `json:"barrier_type"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	b := barriers.Type(strings.TrimSpace(req.BarrierType))
	if strings.TrimSpace(req.SessionID) == "" || !b.Valid() {
		h.fail(w, r, badRequest("session_id and a known barrier_type are required"))
		return
	}
	tok, _, err := h.desk.Issue(r.Context(), req.SessionID, b)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v := h.tokenView(tok)
	v.HandoffURL = h.desk.HandoffURL(tok.Token)
	v.QRURL = v.HandoffURL + ".png"
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handlers) AssistRedeem(w http.ResponseWriter, r *http.Request) {
	tok, err := h.desk.Redeem(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tokenView(tok))
}

// AssistOpen is where the hand-off link lands. It checks the token without
// consuming it.
func (h *Handlers) AssistOpen(w http.ResponseWriter, r *http.Request) {
	tok, err := h.desk.Open(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.tokenView(tok))
}

// AssistQR renders the hand-off link so the parent can scan it from another
// screen.
func (h *Handlers) AssistQR(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	// only valid, unexpired tokens get an image
	if _, err := h.desk.Peek(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	png, err := h.desk.QR(token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
