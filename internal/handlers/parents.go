package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/notify"
	svc "github.com/camprush/camprush/internal/services"
	"github.com/camprush/camprush/internal/store"
)

type childReq struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
}

type parentReq struct {
	Name             string            `json:"name"`
	Phone            string            `json:"phone"`
	PhoneVerified    bool              `json:"phone_verified"`
	Email            string            `json:"email"`
	Timezone         string            `json:"timezone"`
	ChannelOverrides map[string]string `json:"channel_overrides"`
	Children         []childReq        `json:"children"`
}

type childJSON struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date,omitempty"`
}

type parentJSON struct {
	ID            uint        `json:"id"`
	Name          string      `json:"name"`
	Phone         string      `json:"phone"`
	PhoneVerified bool        `json:"phone_verified"`
	Email         string      `json:"email,omitempty"`
	Timezone      string      `json:"timezone,omitempty"`
	Children      []childJSON `json:"children"`
}

func parentView(p *models.Parent) parentJSON {
	v := parentJSON{
		ID:            p.ID,
		Name:          p.Name,
		Phone:         p.Phone,
		PhoneVerified: p.PhoneVerified,
		Email:         p.Email,
		Timezone:      p.Timezone,
		Children:      []childJSON{},
	}
	for _, c := range p.Children {
		cj := childJSON{ID: c.ID, Name: c.Name}
		if !c.BirthDate.IsZero() {
			cj.BirthDate = c.BirthDate.Format("2006-01-02")
		}
		v.Children = append(v.Children, cj)
	}
	return v
}

// ParentCreate registers a parent with their contact addresses, channel
// overrides and children. Phone numbers are stored in E.164.
func (h *Handlers) ParentCreate(w http.ResponseWriter, r *http.Request) {
	var req parentReq
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	phone := svc.NormPhone(req.Phone, h.countryCode)
	if phone == "" {
		h.fail(w, r, badRequest("a valid phone number is required"))
		return
	}
	email, ok := svc.NormEmail(req.Email)
	if !ok {
		h.fail(w, r, badRequest("invalid email address"))
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			h.fail(w, r, badRequest("unknown timezone %q", req.Timezone))
			return
		}
	}
	for tier, ch := range req.ChannelOverrides {
		if !notify.Urgency(tier).Valid() || !notify.Channel(ch).Valid() {
			h.fail(w, r, badRequest("channel override %s=%s is not an urgency and channel", tier, ch))
			return
		}
	}
	if existing, err := svc.FindParentByAny(h.store.DB().WithContext(r.Context()), phone, h.countryCode); err == nil {
		h.fail(w, r, &apiError{Status: http.StatusConflict, Code: "exists", Err: fmt.Errorf("a parent with this phone already exists (id %d)", existing.ID)})
		return
	}

	in := store.NewParent{
		Name:          strings.TrimSpace(req.Name),
		Phone:         phone,
		PhoneVerified: req.PhoneVerified,
		Email:         email,
		Timezone:      req.Timezone,
		Overrides:     req.ChannelOverrides,
	}
	for _, c := range req.Children {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			h.fail(w, r, badRequest("every child needs a name"))
			return
		}
		nc := store.NewChild{Name: name}
		if c.BirthDate != "" {
			d, err := time.Parse("2006-01-02", c.BirthDate)
			if err != nil {
				h.fail(w, r, badRequest("birth_date must be YYYY-MM-DD"))
				return
			}
			nc.BirthDate = d
		}
		in.Children = append(in.Children, nc)
	}

	p, err := h.store.CreateParent(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, parentView(p))
}

// ParentLinkCode issues a six digit code the parent sends to the Telegram
// bot as /link CODE.
func (h *Handlers) ParentLinkCode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		h.fail(w, r, badRequest("parent id must be a positive integer"))
		return
	}
	if _, err := h.store.GetParent(r.Context(), uint(id)); err != nil {
		h.fail(w, r, err)
		return
	}
	code, err := h.store.CreateLinkCode(r.Context(), uint(id), h.linkCodeTTL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"code":       code,
		"expires_at": h.now().Add(h.linkCodeTTL).UTC(),
	})
}
