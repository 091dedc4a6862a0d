package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/notify"
	"github.com/camprush/camprush/internal/schedule"
	"github.com/camprush/camprush/internal/store"
)

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d *Dispatcher) handleLinkCode(ctx context.Context, tu *models.TelegramUser, chat int64, code string) {
	code = onlyDigits(code) // strip spaces, punctuation, accidental chars
	if code == "" {
		d.reply(ctx, chat, "Use: /link 123456\nGet a code from the CampRush website.", nil)
		return
	}

	p, err := d.store.LinkTelegram(ctx, tu, code, d.now())
	if errors.Is(err, store.ErrLinkCodeInvalid) || errors.Is(err, store.ErrNotFound) {
		d.reply(ctx, chat, "Code invalid or expired.", nil)
		return
	}
	if err != nil {
		d.log.Error("link telegram", "error", err)
		d.reply(ctx, chat, "Something went wrong, please try again.", nil)
		return
	}
	d.reply(ctx, chat, fmt.Sprintf("✅ Linked to <b>%s</b>", html.EscapeString(p.Name)), MainKeyboard())
}

// handleDone answers a notification. Without an id it answers the one the
// chat was last sent.
func (d *Dispatcher) handleDone(ctx context.Context, tu *models.TelegramUser, chat int64, id string) {
	if id == "" {
		id = tu.LastMessageID
	}
	if id == "" {
		d.reply(ctx, chat, "Nothing is waiting on you right now.", nil)
		return
	}
	if !d.record(ctx, id, notify.EventResponded) {
		d.reply(ctx, chat, "That alert has already closed.", nil)
		return
	}
	d.reply(ctx, chat, "Thanks, got it. We'll take it from here.", nil)
}

func (d *Dispatcher) handlePlans(ctx context.Context, chat int64, tu *models.TelegramUser) {
	if !linkedTo(tu) {
		d.reply(ctx, chat, "Not linked yet. Share your phone or use /link CODE.", ContactKeyboard())
		return
	}
	plans, err := d.store.ListPlansForUser(ctx, *tu.ParentID)
	if err != nil {
		d.log.Error("list plans", "parent_id", *tu.ParentID, "error", err)
		return
	}
	if len(plans) == 0 {
		d.reply(ctx, chat, "No registration plans yet.", nil)
		return
	}

	now := d.now()
	var b strings.Builder
	b.WriteString("<b>Your registration plans</b>\n")
	for _, p := range plans {
		w := schedule.ComputeTargetWindow(p, now)
		when := w.Target.In(schedule.PlanLocation(p)).Format("Mon, 02 Jan 2006 15:04")
		label := p.ProviderURL
		if label == "" && p.DetectURL != nil {
			label = *p.DetectURL
		}
		fmt.Fprintf(&b, "• %s: %s (expected %s, %s)\n", html.EscapeString(label), p.Status, when, w.Strategy)
	}
	d.reply(ctx, chat, b.String(), nil)
}
