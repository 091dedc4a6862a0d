package notify

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Event string

const (
	EventSent      Event = "sent"
	EventDelivered Event = "delivered"
	EventRead      Event = "read"
	EventResponded Event = "responded"
)

func ParseEvent(s string) (Event, bool) {
	switch Event(s) {
	case EventSent, EventDelivered, EventRead, EventResponded:
		return Event(s), true
	}
	return "", false
}

// Record is the engagement state of one outgoing notification.
type Record struct {
	MessageID string
	UserID    uint
	Channel   Channel
	Urgency   Urgency
	CreatedAt time.Time
	Sent      bool
	Delivered bool
	Read      bool
	Responded bool
}

// State is the furthest point the notification has reached.
func (r Record) State() string {
	switch {
	case r.Responded:
		return string(EventResponded)
	case r.Read:
		return string(EventRead)
	case r.Delivered:
		return string(EventDelivered)
	case r.Sent:
		return string(EventSent)
	}
	return "queued"
}

var ErrNotTracked = errors.New("notification not tracked")

// Tracker owns engagement records. Marks are idempotent and imply the
// earlier states (a read message was delivered). Claim is the once-only
// gate for timer-driven actions: it succeeds for the first caller only and
// never after the parent has responded.
type Tracker interface {
	Start(ctx context.Context, rec Record) error
	Get(ctx context.Context, messageID string) (Record, error)
	Mark(ctx context.Context, messageID string, ev Event) (Record, error)
	Claim(ctx context.Context, messageID, action string) (bool, error)
}

type memoryEntry struct {
	rec    Record
	claims map[string]bool
}

type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{entries: make(map[string]*memoryEntry)}
}

func (t *MemoryTracker) Start(_ context.Context, rec Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[rec.MessageID]; ok {
		return nil
	}
	t.entries[rec.MessageID] = &memoryEntry{rec: rec, claims: map[string]bool{}}
	return nil
}

func (t *MemoryTracker) Get(_ context.Context, id string) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Record{}, ErrNotTracked
	}
	return e.rec, nil
}

func (t *MemoryTracker) Mark(_ context.Context, id string, ev Event) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Record{}, ErrNotTracked
	}
	apply(&e.rec, ev)
	return e.rec, nil
}

func (t *MemoryTracker) Claim(_ context.Context, id, action string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return false, ErrNotTracked
	}
	if e.rec.Responded || e.claims[action] {
		return false, nil
	}
	e.claims[action] = true
	return true, nil
}

func apply(r *Record, ev Event) {
	switch ev {
	case EventResponded:
		r.Responded = true
		fallthrough
	case EventRead:
		r.Read = true
		fallthrough
	case EventDelivered:
		r.Delivered = true
		fallthrough
	case EventSent:
		r.Sent = true
	}
}
