// Package assist hands a blocking barrier (a CAPTCHA, an approval) to the
// parent and tracks the request until it is resolved.
package assist

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/camprush/camprush/internal/barriers"
)

type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) terminal() bool { return s == StateCompleted || s == StateFailed }

var (
	ErrBusy              = errors.New("session already has an open assistance request")
	ErrNoRequest         = errors.New("no assistance request for session")
	ErrInvalidTransition = errors.New("assistance request transition not allowed")
)

type Request struct {
	SessionID string        `json:"session_id"`
	Barrier   barriers.Type `json:"barrier_type"`
	Token     string        `json:"token,omitempty"`
	State     State         `json:"state"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Queue keeps the one open request per session in memory. A session can
// open a new request once the previous one is completed or failed.
type Queue struct {
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Request
}

func NewQueue() *Queue {
	return &Queue{now: time.Now, sessions: make(map[string]*Request)}
}

func (q *Queue) Enqueue(sessionID string, b barriers.Type, token string) (Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.sessions[sessionID]; ok && !cur.State.terminal() {
		return *cur, ErrBusy
	}
	now := q.now()
	r := &Request{SessionID: sessionID, Barrier: b, Token: token, State: StateQueued, CreatedAt: now, UpdatedAt: now}
	q.sessions[sessionID] = r
	return *r, nil
}

func (q *Queue) Get(sessionID string) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.sessions[sessionID]
	if !ok {
		return Request{}, false
	}
	return *r, true
}

// Activate marks the request as picked up by the parent. Activating an
// already active request is a no-op.
func (q *Queue) Activate(sessionID string) (Request, error) {
	return q.move(sessionID, StateActive, "", StateQueued, StateActive)
}

// Complete closes the request. A queued request may complete directly when
// the parent resolves it without opening the hand-off first.
func (q *Queue) Complete(sessionID string) (Request, error) {
	return q.move(sessionID, StateCompleted, "", StateQueued, StateActive)
}

func (q *Queue) Fail(sessionID, note string) (Request, error) {
	return q.move(sessionID, StateFailed, note, StateQueued, StateActive)
}

func (q *Queue) move(sessionID string, to State, note string, from ...State) (Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.sessions[sessionID]
	if !ok {
		return Request{}, ErrNoRequest
	}
	allowed := false
	for _, f := range from {
		if r.State == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return *r, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	r.State = to
	r.UpdatedAt = q.now()
	if note != "" {
		r.Note = note
	}
	return *r, nil
}
