package notify

import (
	"testing"

	"sitewatch/internal/models"
)

func TestRegistryHasAllBuiltins(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []string{"email", "webhook", "slack", "discord", "shoutrrr"} {
		if !r.IsRegistered(typ) {
			t.Errorf("channel type %q not registered", typ)
		}
	}
	if _, err := r.Get("carrier_pigeon"); err == nil {
		t.Error("expected error for unknown channel type")
	}
}

func TestValidateConfig(t *testing.T) {
	r := NewRegistry()

	if err := r.ValidateConfig("slack", map[string]any{"webhook_url": "https://hooks.slack.com/x"}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := r.ValidateConfig("slack", map[string]any{}); err == nil {
		t.Error("missing webhook_url should be rejected")
	}
	if err := r.ValidateConfig("slack", map[string]any{"webhook_url": "   "}); err == nil {
		t.Error("blank webhook_url should be rejected")
	}
	if err := r.ValidateConfig("nope", nil); err == nil {
		t.Error("unknown type should be rejected")
	}
}

func TestMaskSecrets(t *testing.T) {
	r := NewRegistry()

	masked := r.MaskSecrets("webhook", map[string]any{
		"url":        "https://example.com/hook",
		"auth_type":  "bearer",
		"auth_token": "super-secret",
	})
	if masked["auth_token"] != SecretMask {
		t.Errorf("auth_token = %v, want mask", masked["auth_token"])
	}
	if masked["url"] != "https://example.com/hook" {
		t.Errorf("url should not be masked: %v", masked["url"])
	}

	// Empty secrets stay empty rather than implying a stored value.
	masked = r.MaskSecrets("webhook", map[string]any{"auth_token": ""})
	if masked["auth_token"] != "" {
		t.Errorf("empty secret = %v, want empty", masked["auth_token"])
	}
}

func TestUnmaskSecretsRoundTrip(t *testing.T) {
	r := NewRegistry()
	stored := map[string]any{
		"url":        "https://example.com/hook",
		"auth_token": "super-secret",
	}

	// The UI edits the masked form and sends it back unchanged.
	incoming := r.MaskSecrets("webhook", stored)
	incoming["url"] = "https://example.com/hook-v2"

	out := r.UnmaskSecrets("webhook", incoming, stored)
	if out["auth_token"] != "super-secret" {
		t.Errorf("auth_token = %v, want stored secret restored", out["auth_token"])
	}
	if out["url"] != "https://example.com/hook-v2" {
		t.Errorf("url = %v, want updated value", out["url"])
	}

	// A genuinely new secret replaces the stored one.
	incoming["auth_token"] = "rotated"
	out = r.UnmaskSecrets("webhook", incoming, stored)
	if out["auth_token"] != "rotated" {
		t.Errorf("auth_token = %v, want rotated", out["auth_token"])
	}
}

func TestSummaryLine(t *testing.T) {
	p := Payload{
		Trigger:      models.TriggerCheckFailure,
		SiteName:     "Shop",
		CheckName:    "uptime",
		Status:       models.StatusFailure,
		ErrorMessage: "Expected status 200, got 503",
	}
	want := "🔴 [ALERT] Shop - uptime: Expected status 200, got 503"
	if got := summaryLine(p); got != want {
		t.Errorf("summaryLine = %q, want %q", got, want)
	}

	p = Payload{Trigger: models.TriggerCheckRecovery, SiteName: "Shop", CheckName: "uptime", Status: models.StatusSuccess}
	want = "✅ [RECOVERED] Shop - uptime"
	if got := summaryLine(p); got != want {
		t.Errorf("summaryLine = %q, want %q", got, want)
	}
}
