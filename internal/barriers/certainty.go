package barriers

import (
	"errors"
	"fmt"
	"time"
)

// Certainty is how much a cached analysis has been checked.
type Certainty string

const (
	CertaintyEstimated Certainty = "estimated"
	CertaintyVerified  Certainty = "verified"
	CertaintyConfirmed Certainty = "confirmed"
)

type Evidence string

const (
	EvidenceLiveInspection Evidence = "live_inspection"
	EvidenceUserResearch   Evidence = "user_research"
	EvidenceHumanSignoff   Evidence = "human_signoff"
)

var ErrCertaintyTransition = errors.New("certainty transition not allowed")

func ParseCertainty(s string) (Certainty, bool) {
	switch Certainty(s) {
	case CertaintyEstimated, CertaintyVerified, CertaintyConfirmed:
		return Certainty(s), true
	}
	return "", false
}

// Advance moves estimated → verified on a live inspection or accepted user
// research, and verified → confirmed on a human sign-off.
func (c Certainty) Advance(ev Evidence) (Certainty, error) {
	switch {
	case c == CertaintyEstimated && (ev == EvidenceLiveInspection || ev == EvidenceUserResearch):
		return CertaintyVerified, nil
	case c == CertaintyVerified && ev == EvidenceHumanSignoff:
		return CertaintyConfirmed, nil
	}
	return c, fmt.Errorf("%w: %s with %s", ErrCertaintyTransition, c, ev)
}

const maxCacheTTL = 7 * 24 * time.Hour

// TTL stretches the cache lifetime as certainty grows, capped at seven days.
func (c Certainty) TTL(base time.Duration) time.Duration {
	var d time.Duration
	switch c {
	case CertaintyConfirmed:
		d = maxCacheTTL
	case CertaintyVerified:
		d = 3 * base
	default:
		d = base
	}
	if d > maxCacheTTL {
		d = maxCacheTTL
	}
	return d
}
