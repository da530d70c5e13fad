package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"sitewatch/internal/models"
)

// DiscordChannel posts embeds to a Discord webhook.
type DiscordChannel struct {
	HTTPClient *http.Client
}

func (c *DiscordChannel) Type() string        { return "discord" }
func (c *DiscordChannel) DisplayName() string { return "Discord" }

func (c *DiscordChannel) ConfigSchema() ChannelSchema {
	return ChannelSchema{
		Type: c.Type(), Label: c.DisplayName(),
		Fields: []ChannelField{
			{Key: "webhook_url", Label: "Webhook URL", Type: FieldText, Required: true,
				Placeholder: "https://discord.com/api/webhooks/...",
				HelpText:    "Server Settings → Integrations → Webhooks → New Webhook"},
			{Key: "username", Label: "Bot Display Name", Type: FieldText},
		},
	}
}

func (c *DiscordChannel) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// Discord embed colors are decimal RGB.
func discordColor(s models.CheckStatus) int {
	switch s {
	case models.StatusFailure:
		return 15158332
	case models.StatusWarning:
		return 15844367
	default:
		return 3066993
	}
}

func (c *DiscordChannel) Send(ctx context.Context, config map[string]any, p Payload) error {
	webhookURL := cfgString(config, "webhook_url", "")
	if webhookURL == "" {
		return fmt.Errorf("discord channel needs a webhook URL")
	}

	fields := []map[string]any{
		{"name": "Site", "value": p.SiteName, "inline": true},
		{"name": "Check", "value": p.CheckName, "inline": true},
		{"name": "Status", "value": string(p.Status), "inline": true},
	}
	if p.ErrorMessage != "" {
		fields = append(fields, map[string]any{
			"name": "Detail", "value": p.ErrorMessage, "inline": false,
		})
	}
	if p.IncidentID != nil {
		fields = append(fields, map[string]any{
			"name":   "Incident",
			"value":  fmt.Sprintf("#%d (%d failures)", *p.IncidentID, p.FailureCount),
			"inline": true,
		})
	}

	body := map[string]any{
		"embeds": []map[string]any{{
			"title":     fmt.Sprintf("%s [%s] %s - %s", triggerEmoji(p.Trigger), triggerLabel(p.Trigger), p.SiteName, p.CheckName),
			"color":     discordColor(p.Status),
			"fields":    fields,
			"timestamp": p.CheckedAt.UTC().Format(time.RFC3339),
			"footer":    map[string]any{"text": "sitewatch"},
		}},
	}
	if v := cfgString(config, "username", ""); v != "" {
		body["username"] = v
	}

	return postJSON(ctx, c.client(), webhookURL, body)
}

// Test sends a short message so the user sees it arrive in Discord.
func (c *DiscordChannel) Test(ctx context.Context, config map[string]any) error {
	webhookURL := cfgString(config, "webhook_url", "")
	if webhookURL == "" {
		return fmt.Errorf("discord channel needs a webhook URL")
	}
	return postJSON(ctx, c.client(), webhookURL, map[string]any{
		"content": "🔔 sitewatch test notification",
	})
}
