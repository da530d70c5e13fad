package incidents

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"sitewatch/internal/db"
	"sitewatch/internal/models"
)

func setupTestDB(t *testing.T) (*sql.DB, int64, int64) {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	conn.Exec("PRAGMA foreign_keys = ON")
	if err := db.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	res, err := conn.Exec(`INSERT INTO organizations (name) VALUES ('org')`)
	if err != nil {
		t.Fatal(err)
	}
	orgID, _ := res.LastInsertId()
	res, err = conn.Exec(`
		INSERT INTO sites (organization_id, name, url) VALUES (?, 'site', 'https://example.com')`, orgID)
	if err != nil {
		t.Fatal(err)
	}
	siteID, _ := res.LastInsertId()
	res, err = conn.Exec(`
		INSERT INTO check_configurations (site_id, check_type, name) VALUES (?, 'http', 'uptime')`, siteID)
	if err != nil {
		t.Fatal(err)
	}
	configID, _ := res.LastInsertId()
	return conn, orgID, configID
}

func TestFailureOpensThenIncrements(t *testing.T) {
	conn, _, configID := setupTestDB(t)

	tr, err := ApplyResult(conn, configID, "uptime failing", models.StatusFailure)
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil || !tr.Opened {
		t.Fatalf("transition = %+v, want opened", tr)
	}
	if tr.Incident.FailureCount != 1 {
		t.Errorf("failure_count = %d, want 1", tr.Incident.FailureCount)
	}

	tr, err = ApplyResult(conn, configID, "uptime failing", models.StatusFailure)
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil || tr.Opened || tr.Resolved {
		t.Fatalf("transition = %+v, want plain increment", tr)
	}
	if tr.Incident.FailureCount != 2 {
		t.Errorf("failure_count = %d, want 2", tr.Incident.FailureCount)
	}

	got, err := Get(conn, tr.Incident.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailureCount != 2 || got.Status != models.IncidentOpen {
		t.Errorf("stored incident = %+v", got)
	}
}

func TestSuccessResolvesOpenIncident(t *testing.T) {
	conn, _, configID := setupTestDB(t)

	opened, err := ApplyResult(conn, configID, "uptime failing", models.StatusFailure)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := ApplyResult(conn, configID, "uptime failing", models.StatusSuccess)
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil || !tr.Resolved {
		t.Fatalf("transition = %+v, want resolved", tr)
	}
	if tr.Incident.ID != opened.Incident.ID {
		t.Errorf("resolved incident %d, want %d", tr.Incident.ID, opened.Incident.ID)
	}

	got, _ := Get(conn, tr.Incident.ID)
	if got.Status != models.IncidentResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}

	// The next failure opens a fresh incident.
	again, err := ApplyResult(conn, configID, "uptime failing", models.StatusFailure)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Opened || again.Incident.ID == opened.Incident.ID {
		t.Errorf("transition = %+v, want a new incident", again)
	}
}

func TestSuccessWithoutIncidentIsNoop(t *testing.T) {
	conn, _, configID := setupTestDB(t)

	tr, err := ApplyResult(conn, configID, "uptime failing", models.StatusSuccess)
	if err != nil {
		t.Fatal(err)
	}
	if tr != nil {
		t.Errorf("transition = %+v, want nil", tr)
	}
}

func TestWarningLeavesIncidentAlone(t *testing.T) {
	conn, _, configID := setupTestDB(t)

	opened, err := ApplyResult(conn, configID, "uptime failing", models.StatusFailure)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := ApplyResult(conn, configID, "uptime failing", models.StatusWarning)
	if err != nil {
		t.Fatal(err)
	}
	if tr != nil {
		t.Errorf("transition = %+v, want nil", tr)
	}

	got, _ := Get(conn, opened.Incident.ID)
	if got.Status != models.IncidentOpen || got.FailureCount != 1 {
		t.Errorf("incident changed by warning: %+v", got)
	}
}

func TestAcknowledge(t *testing.T) {
	conn, _, configID := setupTestDB(t)

	opened, _ := ApplyResult(conn, configID, "uptime failing", models.StatusFailure)
	if err := Acknowledge(conn, opened.Incident.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := Get(conn, opened.Incident.ID)
	if got.Status != models.IncidentAcknowledged {
		t.Errorf("status = %s, want acknowledged", got.Status)
	}
	if got.AcknowledgedAt == nil {
		t.Error("acknowledged_at not set")
	}

	// Only open incidents can be acknowledged.
	if err := Acknowledge(conn, opened.Incident.ID); err == nil {
		t.Error("expected error acknowledging twice")
	}

	// Further failures still count against the acknowledged incident.
	tr, err := ApplyResult(conn, configID, "uptime failing", models.StatusFailure)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Opened || tr.Incident.ID != opened.Incident.ID {
		t.Errorf("transition = %+v, want increment of acknowledged incident", tr)
	}

	// And a success resolves it.
	tr, _ = ApplyResult(conn, configID, "uptime failing", models.StatusSuccess)
	if tr == nil || !tr.Resolved {
		t.Errorf("transition = %+v, want resolved", tr)
	}
}

func TestListForOrgScopingAndFilter(t *testing.T) {
	conn, orgID, configID := setupTestDB(t)

	ApplyResult(conn, configID, "first", models.StatusFailure)
	ApplyResult(conn, configID, "first", models.StatusSuccess)
	ApplyResult(conn, configID, "second", models.StatusFailure)

	all, err := ListForOrg(conn, orgID, "", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(all))
	}

	open, err := ListForOrg(conn, orgID, string(models.IncidentOpen), 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].Title != "second" {
		t.Errorf("open incidents = %+v", open)
	}

	none, err := ListForOrg(conn, orgID+1, "", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Error("foreign org must see no incidents")
	}
}
