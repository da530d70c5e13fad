package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"sitewatch/internal/checks"
	"sitewatch/internal/incidents"
	"sitewatch/internal/models"
)

// hookServer records every JSON body a webhook channel delivers.
type hookServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func newHookServer(t *testing.T, status int) *hookServer {
	t.Helper()
	h := &hookServer{status: status}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		h.mu.Lock()
		h.bodies = append(h.bodies, body)
		h.mu.Unlock()
		w.WriteHeader(h.status)
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *hookServer) received() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]map[string]any, len(h.bodies))
	copy(out, h.bodies)
	return out
}

type engineFixture struct {
	conn    *sql.DB
	engine  *Engine
	orgID   int64
	site    *models.Site
	cfg     *models.CheckConfiguration
	ruleID  int64
	channel int64
	hook    *hookServer
}

func newEngineFixture(t *testing.T, rule models.NotificationRule, hookStatus int) *engineFixture {
	t.Helper()
	conn := setupTestDB(t)
	orgID := createTestOrg(t, conn)

	res, err := conn.Exec(`
		INSERT INTO sites (organization_id, name, url, is_active)
		VALUES (?, 'Shop', 'https://shop.example.com', 1)`, orgID)
	if err != nil {
		t.Fatal(err)
	}
	siteID, _ := res.LastInsertId()

	configID, err := checks.CreateConfiguration(conn, &models.CheckConfiguration{
		SiteID: siteID, CheckType: "http", Name: "uptime",
		Configuration: map[string]any{}, IntervalSeconds: 60, IsEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	hook := newHookServer(t, hookStatus)
	channelID, err := CreateChannel(conn, &models.NotificationChannel{
		OrganizationID: orgID, Name: "hook", ChannelType: "webhook",
		Configuration: map[string]any{"url": hook.URL}, IsEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rule.OrganizationID = orgID
	rule.ChannelID = channelID
	rule.IsEnabled = true
	if rule.ConsecutiveFailures == 0 {
		rule.ConsecutiveFailures = 1
	}
	ruleID, err := CreateRule(conn, &rule)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := checks.GetConfiguration(conn, configID)
	if err != nil {
		t.Fatal(err)
	}
	site, err := checks.SiteForConfiguration(conn, configID)
	if err != nil {
		t.Fatal(err)
	}

	return &engineFixture{
		conn:    conn,
		engine:  NewEngine(conn, NewRegistry(), zap.NewNop()),
		orgID:   orgID,
		site:    site,
		cfg:     cfg,
		ruleID:  ruleID,
		channel: channelID,
		hook:    hook,
	}
}

// record stores a result row and runs it through the engine.
func (f *engineFixture) record(t *testing.T, status models.CheckStatus, transition *incidents.Transition) {
	t.Helper()
	result := &models.CheckResult{
		CheckConfigurationID: f.cfg.ID,
		Status:               status,
	}
	id, err := checks.InsertResult(f.conn, result)
	if err != nil {
		t.Fatal(err)
	}
	result.ID = id
	if err := f.engine.HandleCheckResult(context.Background(), f.cfg, f.site, result, transition); err != nil {
		t.Fatal(err)
	}
}

func TestEngineDeliversOnFailure(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "alert", Trigger: models.TriggerCheckFailure,
	}, http.StatusOK)

	f.record(t, models.StatusFailure, nil)

	got := f.hook.received()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0]["trigger"] != "check_failure" {
		t.Errorf("trigger = %v", got[0]["trigger"])
	}

	logs, _ := ListLogs(f.conn, f.orgID, 10)
	if len(logs) != 1 || logs[0].Status != models.DeliverySent {
		t.Errorf("logs = %+v, want one sent row", logs)
	}
}

func TestEngineRecoveryOnlyAfterFailure(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "recovery", Trigger: models.TriggerCheckRecovery,
	}, http.StatusOK)

	// First success has no preceding failure, so nothing fires.
	f.record(t, models.StatusSuccess, nil)
	if n := len(f.hook.received()); n != 0 {
		t.Fatalf("deliveries after plain success = %d, want 0", n)
	}

	f.record(t, models.StatusFailure, nil)
	f.record(t, models.StatusSuccess, nil)

	got := f.hook.received()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0]["trigger"] != "check_recovery" {
		t.Errorf("trigger = %v", got[0]["trigger"])
	}

	// Success after success stays quiet.
	f.record(t, models.StatusSuccess, nil)
	if n := len(f.hook.received()); n != 1 {
		t.Errorf("deliveries = %d, want still 1", n)
	}
}

func TestEngineWarningRaisesNothing(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "alert", Trigger: models.TriggerCheckFailure,
	}, http.StatusOK)

	f.record(t, models.StatusWarning, nil)
	if n := len(f.hook.received()); n != 0 {
		t.Errorf("deliveries = %d, want 0", n)
	}
}

func TestEngineConsecutiveFailuresThreshold(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "flappy", Trigger: models.TriggerCheckFailure, ConsecutiveFailures: 3,
	}, http.StatusOK)

	f.record(t, models.StatusFailure, nil)
	f.record(t, models.StatusFailure, nil)
	if n := len(f.hook.received()); n != 0 {
		t.Fatalf("deliveries below threshold = %d, want 0", n)
	}

	f.record(t, models.StatusFailure, nil)
	if n := len(f.hook.received()); n != 1 {
		t.Errorf("deliveries at threshold = %d, want 1", n)
	}

	// A success resets the streak.
	f.record(t, models.StatusSuccess, nil)
	f.record(t, models.StatusFailure, nil)
	if n := len(f.hook.received()); n != 1 {
		t.Errorf("deliveries after reset = %d, want still 1", n)
	}
}

func TestEngineSiteAndTypeFilters(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "filtered", Trigger: models.TriggerCheckFailure,
		CheckTypes: []string{"ssl"},
	}, http.StatusOK)

	// The configuration is an http check, the rule only matches ssl.
	f.record(t, models.StatusFailure, nil)
	if n := len(f.hook.received()); n != 0 {
		t.Errorf("deliveries = %d, want 0 for type mismatch", n)
	}

	rule, _ := GetRule(f.conn, f.orgID, f.ruleID)
	rule.CheckTypes = []string{"http"}
	rule.SiteIDs = []int64{f.site.ID + 100}
	if err := UpdateRule(f.conn, rule); err == nil {
		// The placeholder site does not exist in this org, so the write
		// is rejected; clear the filter instead.
		t.Fatal("expected cross-org site rejection")
	}
	rule.SiteIDs = []int64{f.site.ID}
	if err := UpdateRule(f.conn, rule); err != nil {
		t.Fatal(err)
	}

	f.record(t, models.StatusFailure, nil)
	if n := len(f.hook.received()); n != 1 {
		t.Errorf("deliveries = %d, want 1 after matching filters", n)
	}
}

func TestEngineFailedDeliveryMarksLog(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "alert", Trigger: models.TriggerCheckFailure,
	}, http.StatusInternalServerError)

	f.record(t, models.StatusFailure, nil)

	logs, _ := ListLogs(f.conn, f.orgID, 10)
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if logs[0].Status != models.DeliveryFailed {
		t.Errorf("status = %s, want failed", logs[0].Status)
	}
	if logs[0].ErrorMessage == "" {
		t.Error("expected delivery error recorded")
	}
}

func TestEngineIncidentTriggers(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "incidents", Trigger: models.TriggerIncidentOpened,
	}, http.StatusOK)

	res, err := f.conn.Exec(`
		INSERT INTO incidents (check_configuration_id, status, title, failure_count)
		VALUES (?, 'open', 'uptime failing', 1)`, f.cfg.ID)
	if err != nil {
		t.Fatal(err)
	}
	incidentID, _ := res.LastInsertId()
	incident := &models.Incident{ID: incidentID, FailureCount: 1}
	f.record(t, models.StatusFailure, &incidents.Transition{Opened: true, Incident: incident})

	got := f.hook.received()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0]["trigger"] != "incident_opened" {
		t.Errorf("trigger = %v", got[0]["trigger"])
	}
	if got[0]["incident_id"] != float64(incidentID) {
		t.Errorf("incident_id = %v", got[0]["incident_id"])
	}

	logs, _ := ListLogs(f.conn, f.orgID, 10)
	// The failure itself matched no rule; only the incident trigger wrote
	// a log row.
	if len(logs) != 1 || logs[0].IncidentID == nil || *logs[0].IncidentID != incidentID {
		t.Errorf("logs = %+v", logs)
	}
}

func TestEngineDisabledChannelFailsDelivery(t *testing.T) {
	f := newEngineFixture(t, models.NotificationRule{
		Name: "alert", Trigger: models.TriggerCheckFailure,
	}, http.StatusOK)

	ch, _ := GetChannel(f.conn, f.orgID, f.channel)
	ch.IsEnabled = false
	if err := UpdateChannel(f.conn, ch); err != nil {
		t.Fatal(err)
	}

	f.record(t, models.StatusFailure, nil)
	// The rule joins on channel enablement, so nothing matches at all.
	if n := len(f.hook.received()); n != 0 {
		t.Errorf("deliveries = %d, want 0", n)
	}
	logs, _ := ListLogs(f.conn, f.orgID, 10)
	if len(logs) != 0 {
		t.Errorf("logs = %+v, want none", logs)
	}
}
