// Package sites stores organizations and their monitored sites.
package sites

import (
	"database/sql"
	"fmt"
	"time"

	"sitewatch/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// ── Organization CRUD ───────────────────────────────────────────────────

// CreateOrganization inserts a new tenant.
func CreateOrganization(db *sql.DB, name string) (int64, error) {
	res, err := db.Exec(`INSERT INTO organizations (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("create organization: %w", err)
	}
	return res.LastInsertId()
}

// GetOrganization retrieves an organization by ID, or nil.
func GetOrganization(db *sql.DB, id int64) (*models.Organization, error) {
	var org models.Organization
	var createdAt string
	err := db.QueryRow(`
		SELECT id, name, created_at FROM organizations WHERE id = ?`, id).
		Scan(&org.ID, &org.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	org.CreatedAt = parseTime(createdAt)
	return &org, nil
}

// GetOrganizationByName retrieves an organization by name, or nil.
func GetOrganizationByName(db *sql.DB, name string) (*models.Organization, error) {
	var org models.Organization
	var createdAt string
	err := db.QueryRow(`
		SELECT id, name, created_at FROM organizations WHERE name = ?`, name).
		Scan(&org.ID, &org.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get organization by name: %w", err)
	}
	org.CreatedAt = parseTime(createdAt)
	return &org, nil
}

// ── Site CRUD ───────────────────────────────────────────────────────────

// Create inserts a new site for an organization.
func Create(db *sql.DB, s *models.Site) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO sites (organization_id, name, url, description, is_active)
		VALUES (?, ?, ?, ?, ?)`,
		s.OrganizationID, s.Name, s.URL, s.Description, boolInt(s.IsActive))
	if err != nil {
		return 0, fmt.Errorf("create site: %w", err)
	}
	return res.LastInsertId()
}

// Get retrieves a site scoped to an organization, or nil.
func Get(db *sql.DB, orgID, id int64) (*models.Site, error) {
	row := db.QueryRow(`
		SELECT id, organization_id, name, url, COALESCE(description, ''),
		       is_active, created_at, updated_at
		FROM sites WHERE id = ? AND organization_id = ?`, id, orgID)
	s, err := scanSite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns an organization's sites ordered by name.
func List(db *sql.DB, orgID int64) ([]models.Site, error) {
	rows, err := db.Query(`
		SELECT id, organization_id, name, url, COALESCE(description, ''),
		       is_active, created_at, updated_at
		FROM sites WHERE organization_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []models.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update updates a site within its organization.
func Update(db *sql.DB, s *models.Site) error {
	res, err := db.Exec(`
		UPDATE sites SET
			name = ?, url = ?, description = ?, is_active = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND organization_id = ?`,
		s.Name, s.URL, s.Description, boolInt(s.IsActive), s.ID, s.OrganizationID)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	return expectOneRow(res, "update site")
}

// Delete removes a site and everything hanging off it (cascaded by
// foreign keys).
func Delete(db *sql.DB, orgID, id int64) error {
	res, err := db.Exec(`
		DELETE FROM sites WHERE id = ? AND organization_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	return expectOneRow(res, "delete site")
}

// ── helpers ─────────────────────────────────────────────────────────────

type scannable interface {
	Scan(dest ...any) error
}

func scanSite(s scannable) (models.Site, error) {
	var site models.Site
	var active int
	var createdAt, updatedAt string
	err := s.Scan(&site.ID, &site.OrganizationID, &site.Name, &site.URL,
		&site.Description, &active, &createdAt, &updatedAt)
	if err != nil {
		return site, err
	}
	site.IsActive = active == 1
	site.CreatedAt = parseTime(createdAt)
	site.UpdatedAt = parseTime(updatedAt)
	return site, nil
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
