package notify

import (
	"testing"
	"time"
)

func TestSelectChannel(t *testing.T) {
	verified := Preferences{Email: "p@example.org", Phone: "+15551230000", PhoneVerified: true}
	unverified := Preferences{Email: "p@example.org", Phone: "+15551230000"}
	override := Preferences{Email: "p@example.org", Overrides: map[Urgency]Channel{UrgencyHigh: ChannelTelegram, UrgencyLow: "pigeon"}}

	tests := []struct {
		name  string
		prefs Preferences
		u     Urgency
		want  Channel
	}{
		{"low goes to email", verified, UrgencyLow, ChannelEmail},
		{"medium verified phone", verified, UrgencyMedium, ChannelSMS},
		{"medium unverified phone", unverified, UrgencyMedium, ChannelEmail},
		{"high", unverified, UrgencyHigh, ChannelSMS},
		{"critical", verified, UrgencyCritical, ChannelSMS},
		{"override wins", override, UrgencyHigh, ChannelTelegram},
		{"invalid override ignored", override, UrgencyLow, ChannelEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectChannel(tt.prefs, tt.u); got != tt.want {
				t.Errorf("want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDefaultFallbacks(t *testing.T) {
	p := Preferences{Email: "p@example.org", Phone: "+1555", TelegramChatID: 42}
	got := DefaultFallbacks(p, ChannelSMS)
	if len(got) != 2 || got[0] != ChannelEmail || got[1] != ChannelTelegram {
		t.Errorf("unexpected fallbacks %v", got)
	}
	if got := DefaultFallbacks(Preferences{Phone: "+1555"}, ChannelSMS); len(got) != 0 {
		t.Errorf("no other address means no fallbacks, got %v", got)
	}
}

func TestFallbackDelay(t *testing.T) {
	if FallbackDelay(FallbackStaggered, 0) != 0 || FallbackDelay(FallbackStaggered, 2) != time.Minute {
		t.Error("staggered fallbacks are 30s apart")
	}
	if FallbackDelay(FallbackImmediate, 3) != 0 {
		t.Error("immediate fallbacks have no delay")
	}
}

func TestPredictEngagementBounds(t *testing.T) {
	weekdayNoon := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	sundayNight := time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)
	p := Preferences{Phone: "+1", PhoneVerified: true, Timezone: "UTC"}

	hi := PredictEngagement(p, ChannelSMS, UrgencyCritical, weekdayNoon)
	lo := PredictEngagement(p, ChannelEmail, UrgencyLow, sundayNight)
	if hi > 0.95 || lo < 0.1 {
		t.Errorf("score out of [0.1, 0.95]: hi=%v lo=%v", hi, lo)
	}
	if hi <= lo {
		t.Errorf("matching channel in business hours should score higher: hi=%v lo=%v", hi, lo)
	}
	if got := PredictEngagement(p, ChannelSMS, UrgencyCritical, weekdayNoon); got != hi {
		t.Error("prediction must be deterministic")
	}
}
