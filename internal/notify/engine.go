package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/models"
)

// Checkpoints are the offsets after send at which engagement is sampled.
var Checkpoints = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second, 300 * time.Second}

const (
	fallbackCheckpoint = 60 * time.Second
	reminderCheckpoint = 120 * time.Second

	callbackTimeout = 30 * time.Second
)

var (
	ErrInvalidMessage = errors.New("invalid notification")
	ErrUnreachable    = errors.New("recipient has no reachable channel")
	ErrNoSender       = errors.New("no sender configured for channel")
)

type Message struct {
	ID               string
	UserID           uint
	TemplateID       string
	Urgency          Urgency
	Channel          Channel // empty selects from preferences
	Data             map[string]any
	Recipient        *Preferences // nil looks the user up in the Directory
	AutoEscalation   bool
	EscalationDelay  time.Duration
	FallbackStrategy string
	Fallbacks        []Channel // nil uses every other reachable channel
}

type Dispatch struct {
	MessageID           string  `json:"message_id"`
	Channel             Channel `json:"channel"`
	Status              string  `json:"status"`
	PredictedEngagement float64 `json:"predicted_engagement"`
	Error               string  `json:"error,omitempty"`
}

type Directory interface {
	Recipient(ctx context.Context, userID uint) (Preferences, error)
}

// Recorder persists one notification_queue row per delivery attempt.
type Recorder interface {
	RecordNotification(ctx context.Context, row *models.NotificationQueue) error
	UpdateNotificationStatus(ctx context.Context, messageID, status, errText string) error
}

// EscalationHandler runs at most once per message, when the escalation delay
// passes without a response.
type EscalationHandler func(ctx context.Context, msg Message, rec Record)

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

func WithDirectory(d Directory) Option { return func(e *Engine) { e.dir = d } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithEscalationHandler(h EscalationHandler) Option {
	return func(e *Engine) { e.onEscalate = h }
}

type pending struct {
	msg     Message
	prefs   Preferences
	channel Channel
	content Content
}

type Engine struct {
	log      *logger.Logger
	clock    Clock
	tracker  Tracker
	senders  map[Channel]Sender
	dir      Directory
	recorder Recorder

	onEscalate EscalationHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[string][]Timer
	pending map[string]*pending
}

func NewEngine(log *logger.Logger, tracker Tracker, senders map[Channel]Sender, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		log:     log.With("component", "notify"),
		clock:   realClock{},
		tracker: tracker,
		senders: senders,
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[string][]Timer),
		pending: make(map[string]*pending),
	}
	for _, o := range opts {
		o(e)
	}
	if e.onEscalate == nil {
		e.onEscalate = e.EscalateToAlternate
	}
	return e
}

// Close stops every pending timer.
func (e *Engine) Close() {
	e.mu.Lock()
	for id, ts := range e.timers {
		for _, t := range ts {
			t.Stop()
		}
		delete(e.timers, id)
	}
	e.pending = make(map[string]*pending)
	e.mu.Unlock()
	e.cancel()
}

// Send dispatches msg and arms its checkpoint and escalation timers. A send
// failure is reported but the timers still run, so the 60s checkpoint can
// fall back to another channel.
func (e *Engine) Send(ctx context.Context, msg Message) (Dispatch, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Urgency == "" {
		msg.Urgency = UrgencyMedium
	}
	if !msg.Urgency.Valid() {
		return Dispatch{}, fmt.Errorf("%w: urgency %q", ErrInvalidMessage, msg.Urgency)
	}
	if msg.Channel != "" && !msg.Channel.Valid() {
		return Dispatch{}, fmt.Errorf("%w: channel %q", ErrInvalidMessage, msg.Channel)
	}
	content, err := Render(msg.TemplateID, msg.Data)
	if err != nil {
		return Dispatch{}, err
	}

	prefs, err := e.recipient(ctx, msg)
	if err != nil {
		return Dispatch{}, err
	}
	ch := msg.Channel
	if ch == "" {
		ch = SelectChannel(prefs, msg.Urgency)
	}
	if !prefs.Reachable(ch) {
		alt := DefaultFallbacks(prefs, ch)
		if len(alt) == 0 {
			return Dispatch{}, ErrUnreachable
		}
		ch = alt[0]
	}
	if msg.Fallbacks == nil {
		msg.Fallbacks = DefaultFallbacks(prefs, ch)
	}

	p := &pending{msg: msg, prefs: prefs, channel: ch, content: content}
	d := Dispatch{
		MessageID:           msg.ID,
		Channel:             ch,
		PredictedEngagement: PredictEngagement(prefs, ch, msg.Urgency, e.clock.Now()),
	}

	if err := e.tracker.Start(ctx, Record{
		MessageID: msg.ID,
		UserID:    prefs.UserID,
		Channel:   ch,
		Urgency:   msg.Urgency,
		CreatedAt: e.clock.Now(),
	}); err != nil {
		return Dispatch{}, fmt.Errorf("track notification: %w", err)
	}

	e.mu.Lock()
	e.pending[msg.ID] = p
	e.mu.Unlock()

	sendErr := e.deliver(ctx, p, ch, msg.ID, msg.TemplateID, content)
	if sendErr != nil {
		d.Status = "failed"
		d.Error = sendErr.Error()
	} else {
		d.Status = string(EventSent)
		if _, err := e.tracker.Mark(ctx, msg.ID, EventSent); err != nil {
			e.log.Warn("tracker mark failed", "message_id", msg.ID, "error", err)
		}
	}

	e.arm(p)
	return d, sendErr
}

func (e *Engine) recipient(ctx context.Context, msg Message) (Preferences, error) {
	if msg.Recipient != nil {
		p := *msg.Recipient
		if p.UserID == 0 {
			p.UserID = msg.UserID
		}
		return p, nil
	}
	if e.dir == nil || msg.UserID == 0 {
		return Preferences{}, fmt.Errorf("%w: no recipient", ErrInvalidMessage)
	}
	return e.dir.Recipient(ctx, msg.UserID)
}

// deliver sends on one channel and records the attempt. No retries here.
func (e *Engine) deliver(ctx context.Context, p *pending, ch Channel, queueID, templateID string, c Content) error {
	if e.recorder != nil {
		data, _ := json.Marshal(p.msg.Data)
		row := &models.NotificationQueue{
			MessageID:  queueID,
			UserID:     p.prefs.UserID,
			TemplateID: templateID,
			Channel:    string(ch),
			Urgency:    string(p.msg.Urgency),
			Data:       datatypes.JSON(data),
			Status:     "queued",
		}
		if err := e.recorder.RecordNotification(ctx, row); err != nil {
			e.log.Warn("notification queue insert failed", "message_id", queueID, "error", err)
		}
	}

	var err error
	s, ok := e.senders[ch]
	if !ok || s == nil {
		err = fmt.Errorf("%w: %s", ErrNoSender, ch)
	} else {
		err = s.Send(ctx, p.prefs, p.msg.ID, c)
	}

	status, errText := "sent", ""
	if err != nil {
		status, errText = "failed", err.Error()
		e.log.Error("notification dispatch failed",
			"message_id", queueID,
			"channel", ch,
			"template", templateID,
			"error", err,
		)
	} else {
		e.log.Info("notification sent", "message_id", queueID, "channel", ch, "template", templateID)
	}
	if e.recorder != nil {
		if uerr := e.recorder.UpdateNotificationStatus(ctx, queueID, status, errText); uerr != nil {
			e.log.Warn("notification queue update failed", "message_id", queueID, "error", uerr)
		}
	}
	return err
}

func (e *Engine) arm(p *pending) {
	id := p.msg.ID
	var ts []Timer
	for _, off := range Checkpoints {
		off := off
		ts = append(ts, e.clock.AfterFunc(off, func() { e.checkpoint(id, off) }))
	}
	if p.msg.AutoEscalation && p.msg.EscalationDelay > 0 {
		ts = append(ts, e.clock.AfterFunc(p.msg.EscalationDelay, func() { e.escalate(id) }))
	}

	e.mu.Lock()
	e.timers[id] = append(e.timers[id], ts...)
	e.mu.Unlock()
}

func (e *Engine) addTimer(id string, t Timer) {
	e.mu.Lock()
	e.timers[id] = append(e.timers[id], t)
	e.mu.Unlock()
}

func (e *Engine) lookup(id string) (*pending, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[id]
	return p, ok
}

func (e *Engine) callbackCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(e.ctx, callbackTimeout)
}

func (e *Engine) checkpoint(id string, off time.Duration) {
	ctx, cancel := e.callbackCtx()
	defer cancel()

	ok, err := e.tracker.Claim(ctx, id, fmt.Sprintf("checkpoint_%ds", int(off.Seconds())))
	if err != nil || !ok {
		return
	}
	rec, err := e.tracker.Get(ctx, id)
	if err != nil {
		return
	}
	e.log.Debug("engagement checkpoint", "message_id", id, "offset", off.String(), "state", rec.State())

	switch {
	case off == fallbackCheckpoint && !rec.Delivered:
		e.fallback(ctx, id)
	case off == reminderCheckpoint && rec.Read && !rec.Responded:
		e.remind(ctx, id)
	}
	if off == Checkpoints[len(Checkpoints)-1] {
		e.forgetLater(id)
	}
}

func (e *Engine) fallback(ctx context.Context, id string) {
	p, ok := e.lookup(id)
	if !ok {
		return
	}
	if ok, err := e.tracker.Claim(ctx, id, "fallback"); err != nil || !ok {
		return
	}
	for i, ch := range p.msg.Fallbacks {
		ch := ch
		send := func() {
			cctx, cancel := e.callbackCtx()
			defer cancel()
			if ok, err := e.tracker.Claim(cctx, id, "fallback:"+string(ch)); err != nil || !ok {
				return
			}
			_ = e.deliver(cctx, p, ch, id+":fb:"+string(ch), p.msg.TemplateID, p.content)
		}
		if delay := FallbackDelay(p.msg.FallbackStrategy, i); delay > 0 {
			e.addTimer(id, e.clock.AfterFunc(delay, send))
		} else {
			send()
		}
	}
}

func (e *Engine) remind(ctx context.Context, id string) {
	p, ok := e.lookup(id)
	if !ok {
		return
	}
	if ok, err := e.tracker.Claim(ctx, id, "reminder"); err != nil || !ok {
		return
	}
	c, err := Render(TemplateReminder, map[string]any{"subject": p.content.Subject, "body": p.content.Body})
	if err != nil {
		return
	}
	_ = e.deliver(ctx, p, p.channel, id+":reminder", TemplateReminder, c)
}

func (e *Engine) escalate(id string) {
	ctx, cancel := e.callbackCtx()
	defer cancel()

	ok, err := e.tracker.Claim(ctx, id, "escalation")
	if err != nil || !ok {
		return
	}
	rec, err := e.tracker.Get(ctx, id)
	if err != nil {
		return
	}
	p, found := e.lookup(id)
	if !found {
		return
	}
	e.log.Warn("no response, escalating", "message_id", id, "urgency", p.msg.Urgency, "channel", p.channel)
	e.onEscalate(ctx, p.msg, rec)
}

// EscalateToAlternate is the default escalation: it resends on the first
// other reachable channel.
func (e *Engine) EscalateToAlternate(ctx context.Context, msg Message, rec Record) {
	p, ok := e.lookup(msg.ID)
	if !ok {
		return
	}
	alt := DefaultFallbacks(p.prefs, p.channel)
	if len(alt) == 0 {
		e.log.Error("escalation has no alternate channel", "message_id", msg.ID)
		return
	}
	c, err := Render(TemplateEscalation, map[string]any{
		"subject": p.content.Subject,
		"body":    p.content.Body,
		"channel": string(rec.Channel),
	})
	if err != nil {
		return
	}
	_ = e.deliver(ctx, p, alt[0], msg.ID+":escalation", TemplateEscalation, c)
}

// forgetLater drops in-process state once no timer can still need it.
func (e *Engine) forgetLater(id string) {
	p, ok := e.lookup(id)
	if !ok {
		return
	}
	wait := time.Duration(len(p.msg.Fallbacks)) * fallbackStagger
	if p.msg.AutoEscalation && p.msg.EscalationDelay > Checkpoints[len(Checkpoints)-1] {
		wait += p.msg.EscalationDelay - Checkpoints[len(Checkpoints)-1]
	}
	e.addTimer(id, e.clock.AfterFunc(wait+time.Second, func() { e.forget(id) }))
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.timers[id] {
		t.Stop()
	}
	delete(e.timers, id)
	delete(e.pending, id)
}

// Record applies an engagement event reported by a channel or the parent. A
// response cancels the message's timers.
func (e *Engine) Record(ctx context.Context, messageID string, ev Event) (Record, error) {
	rec, err := e.tracker.Mark(ctx, messageID, ev)
	if err != nil {
		return Record{}, err
	}
	if rec.Responded {
		e.forget(messageID)
	}
	return rec, nil
}

func (e *Engine) Status(ctx context.Context, messageID string) (Record, error) {
	return e.tracker.Get(ctx, messageID)
}
