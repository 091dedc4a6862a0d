package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/notify"
	svc "github.com/camprush/camprush/internal/services"
	"github.com/camprush/camprush/internal/store"
)

// Engagement receives read and response events for notifications.
type Engagement interface {
	Record(ctx context.Context, messageID string, ev notify.Event) (notify.Record, error)
}

type Dispatcher struct {
	c           *Client
	log         *logger.Logger
	store       *store.Store
	engagement  Engagement
	countryCode string
	now         func() time.Time
}

func ContactKeyboard() any {
	return map[string]any{
		"keyboard": [][]map[string]any{
			{{"text": "Share my phone", "request_contact": true}},
		},
		"resize_keyboard":   true,
		"one_time_keyboard": false,
	}
}

func NewDispatcher(log *logger.Logger, c *Client, st *store.Store, engagement Engagement, countryCode string) *Dispatcher {
	return &Dispatcher{
		c:           c,
		log:         log.With("component", "telegram_dispatcher"),
		store:       st,
		engagement:  engagement,
		countryCode: countryCode,
		now:         time.Now,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, u *Update) {
	if u.Callback != nil {
		d.handleCallback(ctx, u.Callback)
		return
	}
	if u.Message == nil || u.Message.From == nil || u.Message.Chat == nil {
		return
	}

	m := u.Message
	chat := m.Chat.ID
	tu, err := d.store.TouchTelegramUser(ctx, m.From.ID, chat, m.From.Username, m.From.FirstName)
	if err != nil {
		d.log.Error("upsert telegram user", "error", err)
		return
	}

	// any message from the chat means the last notification was seen
	if tu.LastMessageID != "" {
		d.record(ctx, tu.LastMessageID, notify.EventRead)
	}

	// Contact link
	if m.Contact != nil && m.Contact.UserID == m.From.ID {
		d.handleContact(ctx, tu, chat, m.Contact.PhoneNumber)
		return
	}

	text := strings.TrimSpace(m.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		d.reply(ctx, chat, "Hi! Tap the button below to link your account by sharing your phone number.", ContactKeyboard())
	case strings.HasPrefix(text, "/link"):
		code := strings.TrimSpace(strings.TrimPrefix(text, "/link"))
		code = strings.Trim(code, " :")
		d.handleLinkCode(ctx, tu, chat, code)
	case strings.HasPrefix(text, "/done"), strings.EqualFold(text, "done"):
		id := strings.TrimSpace(strings.TrimPrefix(text, "/done"))
		if strings.EqualFold(id, "done") {
			id = ""
		}
		d.handleDone(ctx, tu, chat, id)
	case strings.EqualFold(text, "My plans"), strings.HasPrefix(text, "/plans"):
		d.handlePlans(ctx, chat, tu)
	default:
		d.reply(ctx, chat, "Try: <b>My plans</b>, /done after handling an alert, or /link CODE.", MainKeyboard())
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *CallbackQuery) {
	id, ok := strings.CutPrefix(cb.Data, callbackDone)
	if !ok || id == "" {
		_ = d.c.AnswerCallback(ctx, cb.ID, "")
		return
	}
	text := "Thanks, got it."
	if !d.record(ctx, id, notify.EventResponded) {
		text = "That alert has already closed."
	}
	if err := d.c.AnswerCallback(ctx, cb.ID, text); err != nil {
		d.log.Warn("answer callback", "error", err)
	}
}

func (d *Dispatcher) record(ctx context.Context, messageID string, ev notify.Event) bool {
	if d.engagement == nil {
		return false
	}
	_, err := d.engagement.Record(ctx, messageID, ev)
	if err != nil {
		if !errors.Is(err, notify.ErrNotTracked) {
			d.log.Warn("record engagement", "message_id", messageID, "event", ev, "error", err)
		}
		return false
	}
	return true
}

func (d *Dispatcher) reply(ctx context.Context, chat int64, text string, markup any) {
	if err := d.c.SendMessage(ctx, chat, text, markup); err != nil {
		d.log.Warn("telegram reply failed", "error", err)
	}
}

func MainKeyboard() any {
	return map[string]any{
		"keyboard": [][]map[string]string{
			{{"text": "My plans"}},
		},
		"resize_keyboard":   true,
		"one_time_keyboard": false,
	}
}

var _ Engagement = (*notify.Engine)(nil)

func linkedTo(tu *models.TelegramUser) bool { return tu.ParentID != nil }

func (d *Dispatcher) handleContact(ctx context.Context, tu *models.TelegramUser, chat int64, phone string) {
	p, err := svc.FindParentByAny(d.store.DB().WithContext(ctx), phone, d.countryCode)
	if err != nil {
		d.reply(ctx, chat, "Phone not found. Send /link CODE from the CampRush website.", MainKeyboard())
		return
	}
	if err := d.store.AttachTelegram(ctx, tu, p, d.now()); err != nil {
		d.log.Error("attach telegram", "parent_id", p.ID, "error", err)
		return
	}
	d.reply(ctx, chat, fmt.Sprintf("✅ Linked to <b>%s</b>", html.EscapeString(p.Name)), MainKeyboard())
}
