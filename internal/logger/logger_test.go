package logger

import "testing"

func TestSanitizeKVs(t *testing.T) {
	in := []interface{}{
		"plan_id", "p-1",
		"auth_token", "abc123",
		"phone", "+15551234567",
		"dangling",
	}
	out := sanitizeKVs(in)

	if len(out) != len(in) {
		t.Fatalf("length: want %d, got %d", len(in), len(out))
	}
	if out[1] != "p-1" {
		t.Errorf("plan_id should pass through, got %v", out[1])
	}
	if out[3] != "[REDACTED]" {
		t.Errorf("auth_token should be redacted, got %v", out[3])
	}
	if out[5] != "********4567" {
		t.Errorf("phone should be masked, got %v", out[5])
	}
	if out[6] != "dangling" {
		t.Errorf("odd trailing key should be kept, got %v", out[6])
	}
}

func TestMaskShort(t *testing.T) {
	if got := mask("abc"); got != "****" {
		t.Errorf("mask(abc) = %q", got)
	}
}
