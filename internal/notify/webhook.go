package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookChannel POSTs the alert as JSON to an arbitrary endpoint.
type WebhookChannel struct {
	// HTTPClient overrides the default client, used by tests.
	HTTPClient *http.Client
}

func (c *WebhookChannel) Type() string        { return "webhook" }
func (c *WebhookChannel) DisplayName() string { return "Webhook" }

func (c *WebhookChannel) ConfigSchema() ChannelSchema {
	return ChannelSchema{
		Type: c.Type(), Label: c.DisplayName(),
		Fields: []ChannelField{
			{Key: "url", Label: "Webhook URL", Type: FieldText, Required: true,
				Placeholder: "https://example.com/api/alerts"},
			{Key: "method", Label: "HTTP Method", Type: FieldSelect, Default: "POST",
				Options: []SelectOption{
					{Value: "POST", Label: "POST"},
					{Value: "PUT", Label: "PUT"},
				}},
			{Key: "auth_type", Label: "Authentication", Type: FieldSelect, Default: "none",
				Options: []SelectOption{
					{Value: "none", Label: "None"},
					{Value: "bearer", Label: "Bearer Token"},
					{Value: "basic", Label: "Basic Auth"},
				}},
			{Key: "auth_token", Label: "Bearer Token", Type: FieldPassword},
			{Key: "auth_username", Label: "Basic Auth Username", Type: FieldText},
			{Key: "auth_password", Label: "Basic Auth Password", Type: FieldPassword},
		},
	}
}

func (c *WebhookChannel) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *WebhookChannel) Send(ctx context.Context, config map[string]any, p Payload) error {
	url := cfgString(config, "url", "")
	if url == "" {
		return fmt.Errorf("webhook channel needs a URL")
	}
	method := cfgString(config, "method", http.MethodPost)

	body := map[string]any{
		"trigger":       string(p.Trigger),
		"site_name":     p.SiteName,
		"site_url":      p.SiteURL,
		"check_name":    p.CheckName,
		"check_type":    p.CheckType,
		"status":        string(p.Status),
		"error_message": p.ErrorMessage,
		"checked_at":    p.CheckedAt.UTC().Format(time.RFC3339),
		"message":       summaryLine(p),
	}
	if p.IncidentID != nil {
		body["incident_id"] = *p.IncidentID
		body["failure_count"] = p.FailureCount
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	applyWebhookAuth(req, config)

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Test probes the endpoint with OPTIONS, falling back to HEAD. Any
// response below 500 counts as reachable.
func (c *WebhookChannel) Test(ctx context.Context, config map[string]any) error {
	url := cfgString(config, "url", "")
	if url == "" {
		return fmt.Errorf("webhook channel needs a URL")
	}

	for _, method := range []string{http.MethodOptions, http.MethodHead} {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return fmt.Errorf("build test request: %w", err)
		}
		applyWebhookAuth(req, config)
		resp, err := c.client().Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 500 {
			return nil
		}
	}
	return fmt.Errorf("webhook endpoint unreachable")
}

func applyWebhookAuth(req *http.Request, config map[string]any) {
	switch cfgString(config, "auth_type", "none") {
	case "bearer":
		if token := cfgString(config, "auth_token", ""); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case "basic":
		user := cfgString(config, "auth_username", "")
		pass := cfgString(config, "auth_password", "")
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
	}
}
