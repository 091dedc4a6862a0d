package bot

import (
	"context"
	"net/url"
	"time"

	"github.com/camprush/camprush/internal/events"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/notify"
	"github.com/camprush/camprush/internal/schedule"
)

// Notifier is the part of the notification engine the event hooks use.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) (notify.Dispatch, error)
}

// Subscribe installs the plan event hooks: an opening is a critical alert
// that escalates when unanswered, an announced opening time is a low one.
func Subscribe(log *logger.Logger, n Notifier, escalationDelay time.Duration) {
	log = log.With("component", "plan_events")

	events.OnPlanOpened = func(ctx context.Context, plan models.RegistrationPlan, created int) {
		data := map[string]any{"provider": providerLabel(plan), "url": ""}
		if plan.DetectURL != nil {
			data["url"] = *plan.DetectURL
		}
		d, err := n.Send(ctx, notify.Message{
			UserID:           plan.UserID,
			TemplateID:       notify.TemplateRegistrationOpen,
			Urgency:          notify.UrgencyCritical,
			Data:             data,
			AutoEscalation:   true,
			EscalationDelay:  escalationDelay,
			FallbackStrategy: notify.FallbackImmediate,
		})
		if err != nil {
			log.Error("open alert not sent", "plan_id", plan.ID, "error", err)
			return
		}
		log.Info("open alert sent", "plan_id", plan.ID, "message_id", d.MessageID, "channel", d.Channel, "registrations_created", created)
	}

	events.OnOpenTimeFound = func(ctx context.Context, plan models.RegistrationPlan, opensAt time.Time) {
		when := opensAt.In(schedule.PlanLocation(plan)).Format("Mon, 02 Jan 2006 15:04 MST")
		_, err := n.Send(ctx, notify.Message{
			UserID:     plan.UserID,
			TemplateID: notify.TemplateOpenTimeFound,
			Urgency:    notify.UrgencyLow,
			Data:       map[string]any{"provider": providerLabel(plan), "opens_at": when},
		})
		if err != nil {
			log.Warn("open time notice not sent", "plan_id", plan.ID, "error", err)
		}
	}
}

func providerLabel(plan models.RegistrationPlan) string {
	raw := plan.ProviderURL
	if raw == "" && plan.DetectURL != nil {
		raw = *plan.DetectURL
	}
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if raw == "" {
		return "your camp provider"
	}
	return raw
}
