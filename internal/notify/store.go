package notify

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sitewatch/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// ── NotificationChannel CRUD ────────────────────────────────────────────

// CreateChannel inserts a new notification channel.
func CreateChannel(db *sql.DB, ch *models.NotificationChannel) (int64, error) {
	configJSON, err := json.Marshal(ch.Configuration)
	if err != nil {
		return 0, fmt.Errorf("marshal channel configuration: %w", err)
	}
	res, err := db.Exec(`
		INSERT INTO notification_channels
			(organization_id, name, channel_type, configuration, is_enabled)
		VALUES (?, ?, ?, ?, ?)`,
		ch.OrganizationID, ch.Name, ch.ChannelType, string(configJSON),
		boolInt(ch.IsEnabled))
	if err != nil {
		return 0, fmt.Errorf("create channel: %w", err)
	}
	return res.LastInsertId()
}

// GetChannel retrieves a channel scoped to an organization, or nil.
func GetChannel(db *sql.DB, orgID, id int64) (*models.NotificationChannel, error) {
	row := db.QueryRow(`
		SELECT id, organization_id, name, channel_type, configuration,
		       is_enabled, created_at, updated_at
		FROM notification_channels WHERE id = ? AND organization_id = ?`, id, orgID)
	ch, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListChannels returns an organization's channels.
func ListChannels(db *sql.DB, orgID int64) ([]models.NotificationChannel, error) {
	rows, err := db.Query(`
		SELECT id, organization_id, name, channel_type, configuration,
		       is_enabled, created_at, updated_at
		FROM notification_channels WHERE organization_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// UpdateChannel updates a channel's configuration within its
// organization.
func UpdateChannel(db *sql.DB, ch *models.NotificationChannel) error {
	configJSON, err := json.Marshal(ch.Configuration)
	if err != nil {
		return fmt.Errorf("marshal channel configuration: %w", err)
	}
	res, err := db.Exec(`
		UPDATE notification_channels SET
			name = ?, channel_type = ?, configuration = ?, is_enabled = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ?`,
		ch.Name, ch.ChannelType, string(configJSON), boolInt(ch.IsEnabled),
		ch.ID, ch.OrganizationID)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return expectOneRow(res, "update channel")
}

// DeleteChannel removes a channel and its rules (cascaded by foreign
// keys).
func DeleteChannel(db *sql.DB, orgID, id int64) error {
	res, err := db.Exec(`
		DELETE FROM notification_channels WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return expectOneRow(res, "delete channel")
}

// ── NotificationRule CRUD ───────────────────────────────────────────────

// CreateRule inserts a new rule after verifying every referenced
// channel and site belongs to the rule's organization.
func CreateRule(db *sql.DB, rule *models.NotificationRule) (int64, error) {
	if err := validateRuleReferences(db, rule); err != nil {
		return 0, err
	}
	siteIDs, checkTypes, err := marshalRuleFilters(rule)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`
		INSERT INTO notification_rules
			(organization_id, channel_id, name, "trigger", site_ids,
			 check_types, consecutive_failures, is_enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.OrganizationID, rule.ChannelID, rule.Name, string(rule.Trigger),
		siteIDs, checkTypes, rule.ConsecutiveFailures, boolInt(rule.IsEnabled))
	if err != nil {
		return 0, fmt.Errorf("create rule: %w", err)
	}
	return res.LastInsertId()
}

// GetRule retrieves a rule scoped to an organization, or nil.
func GetRule(db *sql.DB, orgID, id int64) (*models.NotificationRule, error) {
	row := db.QueryRow(`
		SELECT id, organization_id, channel_id, name, "trigger", site_ids,
		       check_types, consecutive_failures, is_enabled, created_at, updated_at
		FROM notification_rules WHERE id = ? AND organization_id = ?`, id, orgID)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRules returns an organization's rules.
func ListRules(db *sql.DB, orgID int64) ([]models.NotificationRule, error) {
	rows, err := db.Query(`
		SELECT id, organization_id, channel_id, name, "trigger", site_ids,
		       check_types, consecutive_failures, is_enabled, created_at, updated_at
		FROM notification_rules WHERE organization_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// ListEnabledRulesForTrigger returns an organization's enabled rules
// for one trigger whose channel is also enabled. The engine matches
// results against these.
func ListEnabledRulesForTrigger(db *sql.DB, orgID int64, trigger models.Trigger) ([]models.NotificationRule, error) {
	rows, err := db.Query(`
		SELECT r.id, r.organization_id, r.channel_id, r.name, r."trigger", r.site_ids,
		       r.check_types, r.consecutive_failures, r.is_enabled, r.created_at, r.updated_at
		FROM notification_rules r
		JOIN notification_channels c ON c.id = r.channel_id
		WHERE r.organization_id = ? AND r."trigger" = ?
		  AND r.is_enabled = 1 AND c.is_enabled = 1
		ORDER BY r.id`, orgID, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

// UpdateRule updates a rule within its organization.
func UpdateRule(db *sql.DB, rule *models.NotificationRule) error {
	if err := validateRuleReferences(db, rule); err != nil {
		return err
	}
	siteIDs, checkTypes, err := marshalRuleFilters(rule)
	if err != nil {
		return err
	}
	res, err := db.Exec(`
		UPDATE notification_rules SET
			channel_id = ?, name = ?, "trigger" = ?, site_ids = ?,
			check_types = ?, consecutive_failures = ?, is_enabled = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ?`,
		rule.ChannelID, rule.Name, string(rule.Trigger), siteIDs,
		checkTypes, rule.ConsecutiveFailures, boolInt(rule.IsEnabled),
		rule.ID, rule.OrganizationID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return expectOneRow(res, "update rule")
}

// DeleteRule removes a rule within its organization.
func DeleteRule(db *sql.DB, orgID, id int64) error {
	res, err := db.Exec(`
		DELETE FROM notification_rules WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return expectOneRow(res, "delete rule")
}

// validateRuleReferences rejects rules pointing at channels or sites
// outside the rule's organization.
func validateRuleReferences(db *sql.DB, rule *models.NotificationRule) error {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM notification_channels
		WHERE id = ? AND organization_id = ?`,
		rule.ChannelID, rule.OrganizationID).Scan(&n)
	if err != nil {
		return fmt.Errorf("validate rule channel: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("channel %d does not belong to organization %d",
			rule.ChannelID, rule.OrganizationID)
	}
	for _, siteID := range rule.SiteIDs {
		err := db.QueryRow(`
			SELECT COUNT(*) FROM sites WHERE id = ? AND organization_id = ?`,
			siteID, rule.OrganizationID).Scan(&n)
		if err != nil {
			return fmt.Errorf("validate rule site: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("site %d does not belong to organization %d",
				siteID, rule.OrganizationID)
		}
	}
	return nil
}

func marshalRuleFilters(rule *models.NotificationRule) (siteIDs, checkTypes any, err error) {
	if len(rule.SiteIDs) > 0 {
		b, err := json.Marshal(rule.SiteIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal site filter: %w", err)
		}
		siteIDs = string(b)
	}
	if len(rule.CheckTypes) > 0 {
		b, err := json.Marshal(rule.CheckTypes)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal check type filter: %w", err)
		}
		checkTypes = string(b)
	}
	return siteIDs, checkTypes, nil
}

// ── NotificationLog ─────────────────────────────────────────────────────

// CreateLog inserts a pending delivery row and returns its ID.
func CreateLog(db *sql.DB, l *models.NotificationLog) (int64, error) {
	var resultID, incidentID any
	if l.CheckResultID != 0 {
		resultID = l.CheckResultID
	}
	if l.IncidentID != nil {
		incidentID = *l.IncidentID
	}
	res, err := db.Exec(`
		INSERT INTO notification_logs (rule_id, check_result_id, incident_id, status)
		VALUES (?, ?, ?, ?)`,
		l.RuleID, resultID, incidentID, string(l.Status))
	if err != nil {
		return 0, fmt.Errorf("create notification log: %w", err)
	}
	return res.LastInsertId()
}

// CompleteLog marks a delivery row sent or failed.
func CompleteLog(db *sql.DB, id int64, status models.DeliveryStatus, errMsg string) error {
	_, err := db.Exec(`
		UPDATE notification_logs SET status = ?, error_message = ?, sent_at = ?
		WHERE id = ?`,
		string(status), nullIfEmpty(errMsg), time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("complete notification log: %w", err)
	}
	return nil
}

// ListLogs returns an organization's delivery history, newest first.
func ListLogs(db *sql.DB, orgID int64, limit int) ([]models.NotificationLog, error) {
	rows, err := db.Query(`
		SELECT l.id, l.rule_id, COALESCE(l.check_result_id, 0), l.incident_id,
		       l.status, COALESCE(l.error_message, ''), l.sent_at
		FROM notification_logs l
		JOIN notification_rules r ON r.id = l.rule_id
		WHERE r.organization_id = ?
		ORDER BY l.id DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationLog
	for rows.Next() {
		var l models.NotificationLog
		var status, sentAt string
		var incidentID sql.NullInt64
		if err := rows.Scan(&l.ID, &l.RuleID, &l.CheckResultID, &incidentID,
			&status, &l.ErrorMessage, &sentAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		l.Status = models.DeliveryStatus(status)
		if incidentID.Valid {
			v := incidentID.Int64
			l.IncidentID = &v
		}
		l.SentAt = parseTime(sentAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ── helpers ─────────────────────────────────────────────────────────────

type scannable interface {
	Scan(dest ...any) error
}

func scanChannel(s scannable) (models.NotificationChannel, error) {
	var ch models.NotificationChannel
	var enabled int
	var configJSON, createdAt, updatedAt string
	err := s.Scan(&ch.ID, &ch.OrganizationID, &ch.Name, &ch.ChannelType,
		&configJSON, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return ch, err
	}
	ch.IsEnabled = enabled == 1
	ch.CreatedAt = parseTime(createdAt)
	ch.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(configJSON), &ch.Configuration); err != nil {
		return ch, fmt.Errorf("unmarshal configuration for channel %d: %w", ch.ID, err)
	}
	return ch, nil
}

func scanRule(s scannable) (models.NotificationRule, error) {
	var r models.NotificationRule
	var enabled int
	var trigger, createdAt, updatedAt string
	var siteIDs, checkTypes sql.NullString
	err := s.Scan(&r.ID, &r.OrganizationID, &r.ChannelID, &r.Name, &trigger,
		&siteIDs, &checkTypes, &r.ConsecutiveFailures, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	r.Trigger = models.Trigger(trigger)
	r.IsEnabled = enabled == 1
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	if siteIDs.Valid && siteIDs.String != "" {
		if err := json.Unmarshal([]byte(siteIDs.String), &r.SiteIDs); err != nil {
			return r, fmt.Errorf("unmarshal site filter for rule %d: %w", r.ID, err)
		}
	}
	if checkTypes.Valid && checkTypes.String != "" {
		if err := json.Unmarshal([]byte(checkTypes.String), &r.CheckTypes); err != nil {
			return r, fmt.Errorf("unmarshal check type filter for rule %d: %w", r.ID, err)
		}
	}
	return r, nil
}

func collectRules(rows *sql.Rows) ([]models.NotificationRule, error) {
	var out []models.NotificationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: not found", op)
	}
	return nil
}
