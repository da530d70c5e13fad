package checks

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sitewatch/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// streakScanLimit bounds how far back the consecutive-failure count
// looks. Anything deeper than this counts as "at least the limit".
const streakScanLimit = 100

// ── CheckConfiguration CRUD ─────────────────────────────────────────────

// CreateConfiguration inserts a new check configuration.
func CreateConfiguration(db *sql.DB, cfg *models.CheckConfiguration) (int64, error) {
	configJSON, err := json.Marshal(cfg.Configuration)
	if err != nil {
		return 0, fmt.Errorf("marshal check configuration: %w", err)
	}
	res, err := db.Exec(`
		INSERT INTO check_configurations
			(site_id, check_type, name, configuration, interval_seconds, is_enabled)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cfg.SiteID, cfg.CheckType, cfg.Name, string(configJSON),
		cfg.IntervalSeconds, boolInt(cfg.IsEnabled))
	if err != nil {
		return 0, fmt.Errorf("create check configuration: %w", err)
	}
	return res.LastInsertId()
}

// GetConfiguration retrieves a check configuration by ID, or nil when
// it does not exist.
func GetConfiguration(db *sql.DB, id int64) (*models.CheckConfiguration, error) {
	row := db.QueryRow(`
		SELECT id, site_id, check_type, name, configuration,
		       interval_seconds, is_enabled, created_at, updated_at
		FROM check_configurations WHERE id = ?`, id)
	cfg, err := scanConfiguration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigurationForOrg retrieves a check configuration only when its
// site belongs to the organization.
func GetConfigurationForOrg(db *sql.DB, orgID, id int64) (*models.CheckConfiguration, error) {
	row := db.QueryRow(`
		SELECT c.id, c.site_id, c.check_type, c.name, c.configuration,
		       c.interval_seconds, c.is_enabled, c.created_at, c.updated_at
		FROM check_configurations c
		JOIN sites s ON s.id = c.site_id
		WHERE c.id = ? AND s.organization_id = ?`, id, orgID)
	cfg, err := scanConfiguration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListConfigurationsBySite returns all check configurations for a site.
func ListConfigurationsBySite(db *sql.DB, siteID int64) ([]models.CheckConfiguration, error) {
	rows, err := db.Query(`
		SELECT id, site_id, check_type, name, configuration,
		       interval_seconds, is_enabled, created_at, updated_at
		FROM check_configurations WHERE site_id = ? ORDER BY name`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list check configurations: %w", err)
	}
	defer rows.Close()
	return collectConfigurations(rows)
}

// ListEnabledConfigurations returns every enabled configuration on an
// active site, across all organizations. The scheduler uses this at
// startup.
func ListEnabledConfigurations(db *sql.DB) ([]models.CheckConfiguration, error) {
	rows, err := db.Query(`
		SELECT c.id, c.site_id, c.check_type, c.name, c.configuration,
		       c.interval_seconds, c.is_enabled, c.created_at, c.updated_at
		FROM check_configurations c
		JOIN sites s ON s.id = c.site_id
		WHERE c.is_enabled = 1 AND s.is_active = 1
		ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled check configurations: %w", err)
	}
	defer rows.Close()
	return collectConfigurations(rows)
}

// UpdateConfiguration updates a check configuration's parameters.
func UpdateConfiguration(db *sql.DB, cfg *models.CheckConfiguration) error {
	configJSON, err := json.Marshal(cfg.Configuration)
	if err != nil {
		return fmt.Errorf("marshal check configuration: %w", err)
	}
	res, err := db.Exec(`
		UPDATE check_configurations SET
			check_type = ?, name = ?, configuration = ?,
			interval_seconds = ?, is_enabled = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		cfg.CheckType, cfg.Name, string(configJSON),
		cfg.IntervalSeconds, boolInt(cfg.IsEnabled), cfg.ID)
	if err != nil {
		return fmt.Errorf("update check configuration: %w", err)
	}
	return expectOneRow(res, "update check configuration")
}

// DeleteConfiguration removes a check configuration and its results
// (cascaded by foreign keys).
func DeleteConfiguration(db *sql.DB, id int64) error {
	res, err := db.Exec(`DELETE FROM check_configurations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete check configuration: %w", err)
	}
	return expectOneRow(res, "delete check configuration")
}

// SiteForConfiguration returns the owning site of a configuration.
func SiteForConfiguration(db *sql.DB, configID int64) (*models.Site, error) {
	var s models.Site
	var active int
	var createdAt, updatedAt string
	var description sql.NullString
	err := db.QueryRow(`
		SELECT s.id, s.organization_id, s.name, s.url, s.description,
		       s.is_active, s.created_at, s.updated_at
		FROM sites s
		JOIN check_configurations c ON c.site_id = s.id
		WHERE c.id = ?`, configID).
		Scan(&s.ID, &s.OrganizationID, &s.Name, &s.URL, &description,
			&active, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("site for configuration: %w", err)
	}
	s.Description = description.String
	s.IsActive = active == 1
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// ── CheckResult storage ─────────────────────────────────────────────────

// InsertResult writes one execution record and returns its ID.
func InsertResult(db *sql.DB, r *models.CheckResult) (int64, error) {
	var dataJSON any
	if r.ResultData != nil {
		b, err := json.Marshal(r.ResultData)
		if err != nil {
			return 0, fmt.Errorf("marshal result data: %w", err)
		}
		dataJSON = string(b)
	}
	checkedAt := r.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	res, err := db.Exec(`
		INSERT INTO check_results
			(check_configuration_id, status, response_time_ms, error_message, result_data, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.CheckConfigurationID, string(r.Status), r.ResponseTimeMS,
		nullIfEmpty(r.ErrorMessage), dataJSON, checkedAt.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("insert check result: %w", err)
	}
	return res.LastInsertId()
}

// ListResults returns the newest results for a configuration, newest
// first.
func ListResults(db *sql.DB, configID int64, limit int) ([]models.CheckResult, error) {
	rows, err := db.Query(`
		SELECT id, check_configuration_id, status, response_time_ms,
		       error_message, result_data, checked_at
		FROM check_results
		WHERE check_configuration_id = ?
		ORDER BY checked_at DESC, id DESC LIMIT ?`, configID, limit)
	if err != nil {
		return nil, fmt.Errorf("list check results: %w", err)
	}
	defer rows.Close()

	var out []models.CheckResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PreviousResult returns the most recent result recorded strictly
// before the given result ID, or nil when it is the first.
func PreviousResult(db *sql.DB, configID, beforeResultID int64) (*models.CheckResult, error) {
	row := db.QueryRow(`
		SELECT id, check_configuration_id, status, response_time_ms,
		       error_message, result_data, checked_at
		FROM check_results
		WHERE check_configuration_id = ? AND id < ?
		ORDER BY id DESC LIMIT 1`, configID, beforeResultID)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ConsecutiveFailures counts the unbroken run of failure results ending
// at the newest result, scanning at most streakScanLimit rows. Warnings
// and successes both break the streak.
func ConsecutiveFailures(db *sql.DB, configID int64) (int, error) {
	rows, err := db.Query(`
		SELECT status FROM check_results
		WHERE check_configuration_id = ?
		ORDER BY id DESC LIMIT ?`, configID, streakScanLimit)
	if err != nil {
		return 0, fmt.Errorf("consecutive failures: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, fmt.Errorf("scan result status: %w", err)
		}
		if status != string(models.StatusFailure) {
			break
		}
		streak++
	}
	return streak, rows.Err()
}

// PruneResults deletes results older than the retention window.
func PruneResults(db *sql.DB, olderThan time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM check_results WHERE checked_at < ?`,
		olderThan.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("prune check results: %w", err)
	}
	return res.RowsAffected()
}

// ── helpers ─────────────────────────────────────────────────────────────

type scannable interface {
	Scan(dest ...any) error
}

func scanConfiguration(s scannable) (models.CheckConfiguration, error) {
	var cfg models.CheckConfiguration
	var enabled int
	var configJSON, createdAt, updatedAt string
	err := s.Scan(&cfg.ID, &cfg.SiteID, &cfg.CheckType, &cfg.Name, &configJSON,
		&cfg.IntervalSeconds, &enabled, &createdAt, &updatedAt)
	if err != nil {
		return cfg, err
	}
	cfg.IsEnabled = enabled == 1
	cfg.CreatedAt = parseTime(createdAt)
	cfg.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(configJSON), &cfg.Configuration); err != nil {
		return cfg, fmt.Errorf("unmarshal configuration for check %d: %w", cfg.ID, err)
	}
	return cfg, nil
}

func collectConfigurations(rows *sql.Rows) ([]models.CheckConfiguration, error) {
	var out []models.CheckConfiguration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check configuration: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func scanResult(s scannable) (models.CheckResult, error) {
	var r models.CheckResult
	var status, checkedAt string
	var errMsg, dataJSON sql.NullString
	var respMS sql.NullInt64
	err := s.Scan(&r.ID, &r.CheckConfigurationID, &status, &respMS,
		&errMsg, &dataJSON, &checkedAt)
	if err != nil {
		return r, err
	}
	r.Status = models.CheckStatus(status)
	if respMS.Valid {
		ms := int(respMS.Int64)
		r.ResponseTimeMS = &ms
	}
	r.ErrorMessage = errMsg.String
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &r.ResultData); err != nil {
			return r, fmt.Errorf("unmarshal result data for result %d: %w", r.ID, err)
		}
	}
	r.CheckedAt = parseTime(checkedAt)
	return r, nil
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
