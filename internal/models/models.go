package models

import "time"

// CheckStatus is the verdict of a single check execution.
type CheckStatus string

const (
	StatusSuccess CheckStatus = "success"
	StatusFailure CheckStatus = "failure"
	StatusWarning CheckStatus = "warning"
)

// IncidentStatus tracks the lifecycle of a continuous-failure episode.
type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "open"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentResolved     IncidentStatus = "resolved"
)

// Organization is the tenant boundary. Sites, channels and rules are
// always scoped to exactly one organization.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Site is a monitored target owned by an organization.
type Site struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	Description    string    `json:"description,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CheckConfiguration binds a check type to a site with its parameters
// and schedule.
type CheckConfiguration struct {
	ID              int64          `json:"id"`
	SiteID          int64          `json:"site_id"`
	CheckType       string         `json:"check_type"`
	Name            string         `json:"name"`
	Configuration   map[string]any `json:"configuration"`
	IntervalSeconds int            `json:"interval_seconds"`
	IsEnabled       bool           `json:"is_enabled"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// CheckResult is the immutable record of one check execution.
// Exactly one row is written per execution, success or not.
type CheckResult struct {
	ID                   int64          `json:"id"`
	CheckConfigurationID int64          `json:"check_configuration_id"`
	Status               CheckStatus    `json:"status"`
	ResponseTimeMS       *int           `json:"response_time_ms,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	ResultData           map[string]any `json:"result_data,omitempty"`
	CheckedAt            time.Time      `json:"checked_at"`
}

// Incident is a tracked span of continuous failure for one check
// configuration. Opened on the first failure, resolved on the first
// subsequent success.
type Incident struct {
	ID                   int64          `json:"id"`
	CheckConfigurationID int64          `json:"check_configuration_id"`
	Status               IncidentStatus `json:"status"`
	Title                string         `json:"title"`
	Description          string         `json:"description,omitempty"`
	FailureCount         int            `json:"failure_count"`
	StartedAt            time.Time      `json:"started_at"`
	AcknowledgedAt       *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt           *time.Time     `json:"resolved_at,omitempty"`
}

// NotificationChannel is an organization-scoped delivery target
// (email, webhook, slack, discord, shoutrrr).
type NotificationChannel struct {
	ID             int64          `json:"id"`
	OrganizationID int64          `json:"organization_id"`
	Name           string         `json:"name"`
	ChannelType    string         `json:"channel_type"`
	Configuration  map[string]any `json:"configuration"`
	IsEnabled      bool           `json:"is_enabled"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Trigger is the categorized event a notification rule matches against.
type Trigger string

const (
	TriggerCheckFailure     Trigger = "check_failure"
	TriggerCheckRecovery    Trigger = "check_recovery"
	TriggerIncidentOpened   Trigger = "incident_opened"
	TriggerIncidentResolved Trigger = "incident_resolved"
)

// NotificationRule binds a trigger plus filters to a channel.
// Nil site/check-type lists mean "match everything".
type NotificationRule struct {
	ID                  int64     `json:"id"`
	OrganizationID      int64     `json:"organization_id"`
	ChannelID           int64     `json:"channel_id"`
	Name                string    `json:"name"`
	Trigger             Trigger   `json:"trigger"`
	SiteIDs             []int64   `json:"site_ids,omitempty"`
	CheckTypes          []string  `json:"check_types,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	IsEnabled           bool      `json:"is_enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DeliveryStatus is the state of a notification delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// NotificationLog is the append-only delivery audit. One row per rule
// match per triggering result; status is updated in place as the
// delivery completes.
type NotificationLog struct {
	ID            int64          `json:"id"`
	RuleID        int64          `json:"rule_id"`
	CheckResultID int64          `json:"check_result_id,omitempty"`
	IncidentID    *int64         `json:"incident_id,omitempty"`
	Status        DeliveryStatus `json:"status"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	SentAt        time.Time      `json:"sent_at"`
}

// User represents an authenticated user.
type User struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session represents an active user session.
type Session struct {
	Token          string    `json:"token"`
	UserID         int64     `json:"user_id"`
	OrganizationID int64     `json:"organization_id"`
	Username       string    `json:"username"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Config holds server configuration.
type Config struct {
	Port          string
	DBPath        string
	LogDir        string
	AdminUser     string
	AdminPass     string
	AuthEnabled   bool
	MaxConcurrent int
	RetentionDays int
}
