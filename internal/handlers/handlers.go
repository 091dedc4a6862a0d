// Package handlers is the JSON API the front end and Telegram talk to.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/camprush/camprush/internal/assist"
	"github.com/camprush/camprush/internal/bot"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/monitor"
	"github.com/camprush/camprush/internal/notify"
	svc "github.com/camprush/camprush/internal/services"
	"github.com/camprush/camprush/internal/store"
)

// Poller runs one monitor tick.
type Poller interface {
	RunOnce(ctx context.Context) (monitor.Summary, error)
}

// Notifier is the notification engine as the API sees it.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) (notify.Dispatch, error)
	Record(ctx context.Context, messageID string, ev notify.Event) (notify.Record, error)
	Status(ctx context.Context, messageID string) (notify.Record, error)
}

// UpdateHandler consumes Telegram webhook updates.
type UpdateHandler interface {
	Handle(ctx context.Context, u *bot.Update)
}

type Deps struct {
	Log      *logger.Logger
	Store    *store.Store
	Monitor  Poller
	Analysis *svc.AnalysisService
	Notifier Notifier
	Desk     *assist.Desk
	Telegram UpdateHandler

	WebhookSecret string
	CountryCode   string
	LinkCodeTTL   time.Duration
}

type Handlers struct {
	log           *logger.Logger
	store         *store.Store
	monitor       Poller
	analysis      *svc.AnalysisService
	notifier      Notifier
	desk          *assist.Desk
	telegram      UpdateHandler
	webhookSecret string
	countryCode   string
	linkCodeTTL   time.Duration
	now           func() time.Time
}

func New(d Deps) *Handlers {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	ttl := d.LinkCodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Handlers{
		log:           log.With("component", "api"),
		store:         d.Store,
		monitor:       d.Monitor,
		analysis:      d.Analysis,
		notifier:      d.Notifier,
		desk:          d.Desk,
		telegram:      d.Telegram,
		webhookSecret: d.WebhookSecret,
		countryCode:   d.CountryCode,
		linkCodeTTL:   ttl,
		now:           time.Now,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if sqlDB, err := h.store.DB().DB(); err == nil {
			if err := sqlDB.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MonitorPoll runs one scheduler tick and reports what it did.
func (h *Handlers) MonitorPoll(w http.ResponseWriter, r *http.Request) {
	sum, err := h.monitor.RunOnce(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
