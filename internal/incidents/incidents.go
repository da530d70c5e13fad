// Package incidents tracks continuous-failure episodes per check
// configuration. An incident opens on the first failure, counts every
// further failure, and resolves on the first success. Warnings neither
// open nor resolve incidents.
package incidents

import (
	"database/sql"
	"fmt"
	"time"

	"sitewatch/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// Transition reports what ApplyResult did to the incident state.
type Transition struct {
	Opened   bool
	Resolved bool
	Incident *models.Incident
}

// ApplyResult advances the incident state machine for one check result
// and returns the transition, or nil when nothing changed.
func ApplyResult(db *sql.DB, configID int64, title string, status models.CheckStatus) (*Transition, error) {
	open, err := openIncident(db, configID)
	if err != nil {
		return nil, err
	}

	switch status {
	case models.StatusFailure:
		if open != nil {
			open.FailureCount++
			_, err := db.Exec(`
				UPDATE incidents SET failure_count = failure_count + 1
				WHERE id = ?`, open.ID)
			if err != nil {
				return nil, fmt.Errorf("increment incident %d: %w", open.ID, err)
			}
			return &Transition{Incident: open}, nil
		}
		inc := &models.Incident{
			CheckConfigurationID: configID,
			Status:               models.IncidentOpen,
			Title:                title,
			FailureCount:         1,
			StartedAt:            time.Now().UTC(),
		}
		res, err := db.Exec(`
			INSERT INTO incidents (check_configuration_id, status, title, failure_count, started_at)
			VALUES (?, ?, ?, 1, ?)`,
			configID, string(inc.Status), title, inc.StartedAt.Format(timeFormat))
		if err != nil {
			return nil, fmt.Errorf("open incident: %w", err)
		}
		inc.ID, _ = res.LastInsertId()
		return &Transition{Opened: true, Incident: inc}, nil

	case models.StatusSuccess:
		if open == nil {
			return nil, nil
		}
		now := time.Now().UTC()
		_, err := db.Exec(`
			UPDATE incidents SET status = ?, resolved_at = ?
			WHERE id = ?`, string(models.IncidentResolved), now.Format(timeFormat), open.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve incident %d: %w", open.ID, err)
		}
		open.Status = models.IncidentResolved
		open.ResolvedAt = &now
		return &Transition{Resolved: true, Incident: open}, nil
	}

	// Warnings leave the incident state alone.
	return nil, nil
}

// Acknowledge marks an open incident as acknowledged.
func Acknowledge(db *sql.DB, id int64) error {
	res, err := db.Exec(`
		UPDATE incidents SET status = ?, acknowledged_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		string(models.IncidentAcknowledged), id, string(models.IncidentOpen))
	if err != nil {
		return fmt.Errorf("acknowledge incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledge incident: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("acknowledge incident: not open")
	}
	return nil
}

// Get retrieves an incident by ID, or nil when it does not exist.
func Get(db *sql.DB, id int64) (*models.Incident, error) {
	row := db.QueryRow(`
		SELECT id, check_configuration_id, status, title, COALESCE(description,''),
		       failure_count, started_at, acknowledged_at, resolved_at
		FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// ListForOrg returns an organization's incidents, newest first,
// optionally filtered by status.
func ListForOrg(db *sql.DB, orgID int64, status string, limit int) ([]models.Incident, error) {
	query := `
		SELECT i.id, i.check_configuration_id, i.status, i.title, COALESCE(i.description,''),
		       i.failure_count, i.started_at, i.acknowledged_at, i.resolved_at
		FROM incidents i
		JOIN check_configurations c ON c.id = i.check_configuration_id
		JOIN sites s ON s.id = c.site_id
		WHERE s.organization_id = ?`
	args := []any{orgID}
	if status != "" {
		query += ` AND i.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY i.started_at DESC, i.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// openIncident returns the open or acknowledged incident for a
// configuration, or nil.
func openIncident(db *sql.DB, configID int64) (*models.Incident, error) {
	row := db.QueryRow(`
		SELECT id, check_configuration_id, status, title, COALESCE(description,''),
		       failure_count, started_at, acknowledged_at, resolved_at
		FROM incidents
		WHERE check_configuration_id = ? AND status IN (?, ?)
		ORDER BY started_at DESC LIMIT 1`,
		configID, string(models.IncidentOpen), string(models.IncidentAcknowledged))
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanIncident(s scannable) (models.Incident, error) {
	var inc models.Incident
	var status, startedAt string
	var ackAt, resolvedAt sql.NullString
	err := s.Scan(&inc.ID, &inc.CheckConfigurationID, &status, &inc.Title,
		&inc.Description, &inc.FailureCount, &startedAt, &ackAt, &resolvedAt)
	if err != nil {
		return inc, err
	}
	inc.Status = models.IncidentStatus(status)
	inc.StartedAt = parseTime(startedAt)
	if ackAt.Valid {
		t := parseTime(ackAt.String)
		inc.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		inc.ResolvedAt = &t
	}
	return inc, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
