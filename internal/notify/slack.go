package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sitewatch/internal/models"
)

// SlackChannel posts rich attachments to a Slack incoming webhook.
type SlackChannel struct {
	HTTPClient *http.Client
}

func (c *SlackChannel) Type() string        { return "slack" }
func (c *SlackChannel) DisplayName() string { return "Slack" }

func (c *SlackChannel) ConfigSchema() ChannelSchema {
	return ChannelSchema{
		Type: c.Type(), Label: c.DisplayName(),
		Fields: []ChannelField{
			{Key: "webhook_url", Label: "Webhook URL", Type: FieldText, Required: true,
				Placeholder: "https://hooks.slack.com/services/T.../B.../...",
				HelpText:    "More info: https://api.slack.com/messaging/webhooks"},
			{Key: "channel", Label: "Channel Override", Type: FieldText, Placeholder: "#alerts"},
			{Key: "username", Label: "Username Override", Type: FieldText},
			{Key: "icon_emoji", Label: "Icon Emoji", Type: FieldText, Placeholder: ":bell:"},
		},
	}
}

func (c *SlackChannel) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// slackColor uses Slack's attachment palette rather than the shared
// hex colors.
func slackColor(s models.CheckStatus) string {
	switch s {
	case models.StatusFailure:
		return "#dc3545"
	case models.StatusWarning:
		return "#ffc107"
	default:
		return "#36a64f"
	}
}

func slackEmoji(s models.CheckStatus) string {
	switch s {
	case models.StatusFailure:
		return ":x:"
	case models.StatusWarning:
		return ":warning:"
	default:
		return ":white_check_mark:"
	}
}

func (c *SlackChannel) Send(ctx context.Context, config map[string]any, p Payload) error {
	webhookURL := cfgString(config, "webhook_url", "")
	if webhookURL == "" {
		return fmt.Errorf("slack channel needs a webhook URL")
	}

	fields := []map[string]any{
		{"title": "Site", "value": p.SiteName, "short": true},
		{"title": "Check", "value": p.CheckName, "short": true},
		{"title": "Status", "value": string(p.Status), "short": true},
	}
	if p.ErrorMessage != "" {
		fields = append(fields, map[string]any{
			"title": "Detail", "value": p.ErrorMessage, "short": false,
		})
	}
	if p.IncidentID != nil {
		fields = append(fields, map[string]any{
			"title": "Incident",
			"value": fmt.Sprintf("#%d (%d failures)", *p.IncidentID, p.FailureCount),
			"short": true,
		})
	}

	body := map[string]any{
		"attachments": []map[string]any{{
			"color":  slackColor(p.Status),
			"title":  fmt.Sprintf("%s [%s] %s - %s", slackEmoji(p.Status), triggerLabel(p.Trigger), p.SiteName, p.CheckName),
			"fields": fields,
			"footer": "sitewatch",
			"ts":     p.CheckedAt.Unix(),
		}},
	}
	if v := cfgString(config, "channel", ""); v != "" {
		body["channel"] = v
	}
	if v := cfgString(config, "username", ""); v != "" {
		body["username"] = v
	}
	if v := cfgString(config, "icon_emoji", ""); v != "" {
		body["icon_emoji"] = v
	}

	return postJSON(ctx, c.client(), webhookURL, body)
}

// Test sends a short message so the user sees it arrive in Slack.
func (c *SlackChannel) Test(ctx context.Context, config map[string]any) error {
	webhookURL := cfgString(config, "webhook_url", "")
	if webhookURL == "" {
		return fmt.Errorf("slack channel needs a webhook URL")
	}
	return postJSON(ctx, c.client(), webhookURL, map[string]any{
		"text": ":bell: sitewatch test notification",
	})
}

// postJSON is shared by the Slack and Discord webhook channels.
func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
