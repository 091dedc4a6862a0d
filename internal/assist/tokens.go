package assist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/camprush/camprush/internal/barriers"
	"github.com/camprush/camprush/internal/logger"
	"github.com/camprush/camprush/internal/models"
	"github.com/camprush/camprush/internal/store"
)

var (
	ErrTokenExpired  = errors.New("approval token expired")
	ErrTokenUsed     = errors.New("approval token already used")
	ErrTokenNotFound = errors.New("approval token not found")
)

const DefaultTokenTTL = 15 * time.Minute

// Desk issues approval tokens and keeps the assistance queue in step with
// them. Expiry is checked when a token is read; nothing evicts tokens.
type Desk struct {
	log     *logger.Logger
	store   *store.Store
	queue   *Queue
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewDesk(log *logger.Logger, st *store.Store, queue *Queue, ttl time.Duration, publicBaseURL string) *Desk {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Desk{
		log:     log.With("component", "assist"),
		store:   st,
		queue:   queue,
		ttl:     ttl,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		now:     time.Now,
	}
}

// Issue creates a token for a barrier the parent has to clear by hand and
// queues the matching request.
func (d *Desk) Issue(ctx context.Context, sessionID string, b barriers.Type) (*models.ApprovalToken, Request, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || !b.Valid() {
		return nil, Request{}, fmt.Errorf("session_id and a known barrier_type are required")
	}
	tok := &models.ApprovalToken{
		Token:       uuid.NewString(),
		SessionID:   sessionID,
		BarrierType: string(b),
		ExpiresAt:   d.now().Add(d.ttl),
	}
	req, err := d.queue.Enqueue(sessionID, b, tok.Token)
	if err != nil {
		return nil, req, err
	}
	if err := d.store.CreateApprovalToken(ctx, tok); err != nil {
		_, _ = d.queue.Fail(sessionID, "token could not be stored")
		return nil, Request{}, err
	}
	d.audit(ctx, store.AuditTokenIssued, tok)
	return tok, req, nil
}

// Open is called when the parent follows the hand-off link. It validates the
// token without consuming it and marks the request active.
func (d *Desk) Open(ctx context.Context, token string) (*models.ApprovalToken, error) {
	tok, err := d.check(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, err := d.queue.Activate(tok.SessionID); err != nil && !errors.Is(err, ErrNoRequest) {
		d.log.Warn("assist activate", "session_id", tok.SessionID, "error", err)
	}
	return tok, nil
}

// Redeem consumes a token exactly once.
func (d *Desk) Redeem(ctx context.Context, token string) (*models.ApprovalToken, error) {
	tok, err := d.check(ctx, token)
	if err != nil {
		return nil, err
	}
	now := d.now()
	ok, err := d.store.MarkTokenUsed(ctx, tok.Token, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenUsed
	}
	tok.UsedAt = &now
	if _, err := d.queue.Complete(tok.SessionID); err != nil && !errors.Is(err, ErrNoRequest) {
		d.log.Warn("assist complete", "session_id", tok.SessionID, "error", err)
	}
	d.audit(ctx, store.AuditTokenRedeemed, tok)
	return tok, nil
}

// Peek validates a token without touching the queue.
func (d *Desk) Peek(ctx context.Context, token string) (*models.ApprovalToken, error) {
	return d.check(ctx, token)
}

func (d *Desk) check(ctx context.Context, token string) (*models.ApprovalToken, error) {
	tok, err := d.store.GetApprovalToken(ctx, strings.TrimSpace(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	if tok.UsedAt != nil {
		return nil, ErrTokenUsed
	}
	if !d.now().Before(tok.ExpiresAt) {
		if _, err := d.queue.Fail(tok.SessionID, "approval token expired"); err != nil && !errors.Is(err, ErrNoRequest) && !errors.Is(err, ErrInvalidTransition) {
			d.log.Warn("assist fail", "session_id", tok.SessionID, "error", err)
		}
		return nil, ErrTokenExpired
	}
	return tok, nil
}

func (d *Desk) Status(sessionID string) (Request, bool) { return d.queue.Get(sessionID) }

// HandoffURL is where the QR code points the parent's phone.
func (d *Desk) HandoffURL(token string) string {
	return d.baseURL + "/assist/" + url.PathEscape(token)
}

// QR renders the hand-off URL as a PNG.
func (d *Desk) QR(token string) ([]byte, error) {
	return qrcode.Encode(d.HandoffURL(token), qrcode.Medium, 256)
}

func (d *Desk) audit(ctx context.Context, event string, tok *models.ApprovalToken) {
	err := d.store.Audit(ctx, store.AuditEvent{
		Event:     event,
		SessionID: tok.SessionID,
		Detail: map[string]any{
			"barrier_type": tok.BarrierType,
			"expires_at":   tok.ExpiresAt,
		},
	})
	if err != nil {
		d.log.Warn("audit write failed", "event", event, "error", err)
	}
}
