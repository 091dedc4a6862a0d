package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/camprush/camprush/internal/handlers"
)

func Router(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Post("/tg/webhook", h.TelegramWebhook)

	// Assistance hand-off, opened from the parent's phone
	r.Get("/assist/{token}.png", h.AssistQR)
	r.Get("/assist/{token}", h.AssistOpen)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.AllowContentType("application/json"))

		api.Post("/monitor/poll", h.MonitorPoll)

		api.Post("/parents", h.ParentCreate)
		api.Post("/parents/{id}/link-code", h.ParentLinkCode)

		api.Route("/plans", func(pr chi.Router) {
			pr.Post("/", h.PlanCreate)
			pr.Get("/{id}", h.PlanGet)
			pr.Post("/{id}/status", h.PlanStatus)
			pr.Get("/{id}/schedule", h.PlanSchedule)
			pr.Get("/{id}/logs", h.PlanLogs)
		})

		api.Post("/barriers/analyze", h.BarriersAnalyze)
		api.Post("/barriers/certainty", h.BarriersCertainty)

		api.Post("/notifications/dispatch", h.NotificationDispatch)
		api.Get("/notifications/{id}", h.NotificationStatus)
		api.Post("/notifications/{id}/events", h.NotificationEvent)

		api.Post("/assist/tokens", h.AssistIssue)
		api.Post("/assist/tokens/{token}/redeem", h.AssistRedeem)
	})

	return r
}
