// Package notify sends parent notifications and escalates when nobody
// answers.
package notify

import (
	"time"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelTelegram:
		return true
	}
	return false
}

// Preferences is a parent's addresses plus per-urgency channel overrides.
type Preferences struct {
	UserID         uint
	Name           string
	Email          string
	Phone          string
	PhoneVerified  bool
	TelegramChatID int64
	Timezone       string
	Overrides      map[Urgency]Channel
}

// Reachable reports whether the parent has an address for ch.
func (p Preferences) Reachable(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.Email != ""
	case ChannelSMS:
		return p.Phone != ""
	case ChannelTelegram:
		return p.TelegramChatID != 0
	}
	return false
}

// SelectChannel applies the parent's override for the tier, then the
// defaults: low → email, medium → sms when the phone is verified else email,
// high and critical → sms.
func SelectChannel(p Preferences, u Urgency) Channel {
	if ch, ok := p.Overrides[u]; ok && ch.Valid() {
		return ch
	}
	switch u {
	case UrgencyMedium:
		if p.PhoneVerified {
			return ChannelSMS
		}
		return ChannelEmail
	case UrgencyHigh, UrgencyCritical:
		return ChannelSMS
	default:
		return ChannelEmail
	}
}

var fallbackOrder = []Channel{ChannelSMS, ChannelEmail, ChannelTelegram}

// DefaultFallbacks is every other channel the parent can be reached on.
func DefaultFallbacks(p Preferences, primary Channel) []Channel {
	var out []Channel
	for _, ch := range fallbackOrder {
		if ch != primary && p.Reachable(ch) {
			out = append(out, ch)
		}
	}
	return out
}

const (
	FallbackStaggered = "staggered"
	FallbackImmediate = "immediate"

	fallbackStagger = 30 * time.Second
)

// FallbackDelay is when the index-th fallback goes out after the 60s checkpoint.
func FallbackDelay(strategy string, index int) time.Duration {
	if strategy == FallbackImmediate {
		return 0
	}
	return time.Duration(index) * fallbackStagger
}

var baseResponseRate = map[Channel]float64{
	ChannelSMS:      0.45,
	ChannelTelegram: 0.4,
	ChannelEmail:    0.25,
}

var urgencyBonus = map[Urgency]float64{
	UrgencyLow:      0,
	UrgencyMedium:   0.05,
	UrgencyHigh:     0.1,
	UrgencyCritical: 0.2,
}

// PredictEngagement estimates the chance of a reply. It is for display and
// ordering only.
func PredictEngagement(p Preferences, ch Channel, u Urgency, at time.Time) float64 {
	score := baseResponseRate[ch]
	if ch == SelectChannel(p, u) {
		score += 0.15
	}
	score += urgencyBonus[u]
	if businessHours(at, p.Timezone) {
		score += 0.1
	}
	switch {
	case score < 0.1:
		return 0.1
	case score > 0.95:
		return 0.95
	}
	return score
}

func businessHours(at time.Time, tz string) bool {
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		loc = time.UTC
	}
	local := at.In(loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := local.Hour()
	return h >= 9 && h < 18
}
