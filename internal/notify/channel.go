// Package notify matches check results against notification rules and
// delivers alerts through pluggable channels.
package notify

import (
	"context"
	"time"

	"sitewatch/internal/models"
)

// Payload is everything a channel needs to format one notification.
type Payload struct {
	Trigger      models.Trigger
	SiteName     string
	SiteURL      string
	CheckName    string
	CheckType    string
	Status       models.CheckStatus
	ErrorMessage string
	IncidentID   *int64
	FailureCount int
	CheckedAt    time.Time
}

// Channel delivers notifications to one kind of destination.
// Implementations must be safe for concurrent use.
type Channel interface {
	// Type is the stable identifier stored in notification_channels.
	Type() string
	// DisplayName is the human-readable name shown in the UI.
	DisplayName() string
	// ConfigSchema describes the configuration fields the frontend
	// should render for this channel type.
	ConfigSchema() ChannelSchema
	// Send delivers one notification using the stored configuration.
	Send(ctx context.Context, config map[string]any, p Payload) error
	// Test verifies the configuration is reachable without sending a
	// real alert.
	Test(ctx context.Context, config map[string]any) error
}

// ─── Formatting helpers shared by channels ──────────────────────────────

// triggerLabel is the bracketed tag in subjects and titles.
func triggerLabel(t models.Trigger) string {
	switch t {
	case models.TriggerCheckFailure:
		return "ALERT"
	case models.TriggerCheckRecovery:
		return "RECOVERED"
	case models.TriggerIncidentOpened:
		return "INCIDENT"
	case models.TriggerIncidentResolved:
		return "RESOLVED"
	default:
		return "NOTIFICATION"
	}
}

func triggerEmoji(t models.Trigger) string {
	switch t {
	case models.TriggerCheckFailure:
		return "🔴"
	case models.TriggerIncidentOpened:
		return "🚨"
	case models.TriggerCheckRecovery, models.TriggerIncidentResolved:
		return "✅"
	default:
		return "🔔"
	}
}

// statusColor is the hex color used in rich-format messages.
func statusColor(s models.CheckStatus) string {
	switch s {
	case models.StatusFailure:
		return "#dc2626"
	case models.StatusWarning:
		return "#f59e0b"
	default:
		return "#16a34a"
	}
}

// summaryLine is the single-sentence body used by plain-text channels.
func summaryLine(p Payload) string {
	label := triggerLabel(p.Trigger)
	msg := triggerEmoji(p.Trigger) + " [" + label + "] " + p.SiteName + " - " + p.CheckName
	if p.ErrorMessage != "" {
		msg += ": " + p.ErrorMessage
	}
	return msg
}
