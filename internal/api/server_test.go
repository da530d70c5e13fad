package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"sitewatch/internal/auth"
	"sitewatch/internal/checks"
	"sitewatch/internal/db"
	"sitewatch/internal/events"
	"sitewatch/internal/models"
	"sitewatch/internal/notify"
	"sitewatch/internal/scheduler"
	"sitewatch/internal/sites"
	"sitewatch/internal/stream"
)

// successRunner stands in for the executor: every run writes one
// successful result row.
type successRunner struct {
	conn *sql.DB

	mu   sync.Mutex
	runs []int64
}

func (r *successRunner) Run(ctx context.Context, configID int64) error {
	r.mu.Lock()
	r.runs = append(r.runs, configID)
	r.mu.Unlock()

	rt := 15
	_, err := checks.InsertResult(r.conn, &models.CheckResult{
		CheckConfigurationID: configID,
		Status:               models.StatusSuccess,
		ResponseTimeMS:       &rt,
		CheckedAt:            time.Now().UTC(),
	})
	return err
}

type apiFixture struct {
	conn   *sql.DB
	srv    *httptest.Server
	runner *successRunner
	orgID  int64
}

func newAPIFixture(t *testing.T, authEnabled bool) *apiFixture {
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

	orgID, err := sites.CreateOrganization(conn, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.CreateUser(conn, orgID, "admin", "changeme"); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	runner := &successRunner{conn: conn}
	sched := scheduler.New(conn, runner, logger)
	t.Cleanup(sched.Stop)
	bus := events.NewBus(16, logger)

	server := &Server{
		DB:            conn,
		Logger:        logger,
		Config:        models.Config{AdminUser: "admin", AuthEnabled: authEnabled},
		Checks:        checks.NewRegistry(),
		Channels:      notify.NewRegistry(),
		Scheduler:     sched,
		Stream:        stream.NewHub(conn, bus, logger),
		FallbackOrgID: orgID,
	}
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &apiFixture{conn: conn, srv: srv, runner: runner, orgID: orgID}
}

// do sends a JSON request and decodes the JSON response into out.
func (f *apiFixture) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t, false)
	resp, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestLoginLogoutAndMe(t *testing.T) {
	f := newAPIFixture(t, true)

	// Wrong credentials are a 401, not an error.
	resp := f.do(t, "POST", "/api/auth/login",
		map[string]string{"username": "admin", "password": "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}

	// Without a session the API is closed.
	resp = f.do(t, "GET", "/api/sites", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	var session models.Session
	resp = f.do(t, "POST", "/api/auth/login",
		map[string]string{"username": "admin", "password": "changeme"}, &session)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	if session.Token == "" || session.OrganizationID != f.orgID {
		t.Fatalf("session = %+v", session)
	}
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}

	// Bearer token works for API clients.
	req, _ := http.NewRequest("GET", f.srv.URL+"/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var me models.Session
	json.NewDecoder(meResp.Body).Decode(&me)
	meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK || me.Username != "admin" {
		t.Fatalf("me status=%d session=%+v", meResp.StatusCode, me)
	}

	// Logout invalidates the token.
	req, _ = http.NewRequest("POST", f.srv.URL+"/api/auth/logout", nil)
	req.AddCookie(cookie)
	outResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	outResp.Body.Close()
	if outResp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", outResp.StatusCode)
	}
	req, _ = http.NewRequest("GET", f.srv.URL+"/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	meResp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	meResp.Body.Close()
	if meResp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", meResp.StatusCode)
	}
}

func TestSiteEndpoints(t *testing.T) {
	f := newAPIFixture(t, false)

	var list []models.Site
	resp := f.do(t, "GET", "/api/sites", nil, &list)
	if resp.StatusCode != http.StatusOK || len(list) != 0 {
		t.Fatalf("empty list: status=%d len=%d", resp.StatusCode, len(list))
	}

	resp = f.do(t, "POST", "/api/sites", map[string]string{"name": "Shop"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing url status = %d, want 400", resp.StatusCode)
	}

	var site models.Site
	resp = f.do(t, "POST", "/api/sites",
		map[string]string{"name": "Shop", "url": "https://shop.example.com"}, &site)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if site.ID == 0 || !site.IsActive || site.OrganizationID != f.orgID {
		t.Fatalf("created site = %+v", site)
	}

	var got models.Site
	resp = f.do(t, "GET", fmt.Sprintf("/api/sites/%d", site.ID), nil, &got)
	if resp.StatusCode != http.StatusOK || got.Name != "Shop" {
		t.Fatalf("get: status=%d site=%+v", resp.StatusCode, got)
	}

	resp = f.do(t, "PUT", fmt.Sprintf("/api/sites/%d", site.ID),
		map[string]any{"name": "Shop EU", "is_active": false}, &got)
	if resp.StatusCode != http.StatusOK || got.Name != "Shop EU" || got.IsActive {
		t.Fatalf("update: status=%d site=%+v", resp.StatusCode, got)
	}

	resp = f.do(t, "GET", "/api/sites/999", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing site status = %d, want 404", resp.StatusCode)
	}

	resp = f.do(t, "DELETE", fmt.Sprintf("/api/sites/%d", site.ID), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	resp = f.do(t, "DELETE", fmt.Sprintf("/api/sites/%d", site.ID), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCheckEndpoints(t *testing.T) {
	f := newAPIFixture(t, false)

	var site models.Site
	f.do(t, "POST", "/api/sites",
		map[string]string{"name": "Shop", "url": "https://shop.example.com"}, &site)

	resp := f.do(t, "POST", fmt.Sprintf("/api/sites/%d/checks", site.ID),
		map[string]any{"check_type": "carrier_pigeon", "name": "x"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown type status = %d, want 400", resp.StatusCode)
	}

	var cfg models.CheckConfiguration
	resp = f.do(t, "POST", fmt.Sprintf("/api/sites/%d/checks", site.ID),
		map[string]any{"check_type": "http", "name": "uptime"}, &cfg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create check status = %d, want 201", resp.StatusCode)
	}
	if cfg.IntervalSeconds != 300 || !cfg.IsEnabled {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	var listed []models.CheckConfiguration
	resp = f.do(t, "GET", fmt.Sprintf("/api/sites/%d/checks", site.ID), nil, &listed)
	if resp.StatusCode != http.StatusOK || len(listed) != 1 {
		t.Fatalf("list checks: status=%d len=%d", resp.StatusCode, len(listed))
	}

	// check-types exposes the plugin schemas.
	var schemas []map[string]any
	resp = f.do(t, "GET", "/api/check-types", nil, &schemas)
	if resp.StatusCode != http.StatusOK || len(schemas) == 0 {
		t.Fatalf("check-types: status=%d len=%d", resp.StatusCode, len(schemas))
	}

	var result models.CheckResult
	resp = f.do(t, "POST", fmt.Sprintf("/api/checks/%d/run", cfg.ID), nil, &result)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run status = %d, want 200", resp.StatusCode)
	}
	if result.Status != models.StatusSuccess || result.CheckConfigurationID != cfg.ID {
		t.Errorf("run result = %+v", result)
	}

	// The scheduler's immediate run may have recorded a result too, so
	// only the lower bound is stable.
	var results []models.CheckResult
	resp = f.do(t, "GET", fmt.Sprintf("/api/checks/%d/results", cfg.ID), nil, &results)
	if resp.StatusCode != http.StatusOK || len(results) == 0 {
		t.Fatalf("results: status=%d len=%d", resp.StatusCode, len(results))
	}

	// Disabling the check drops its schedule.
	var updated models.CheckConfiguration
	resp = f.do(t, "PUT", fmt.Sprintf("/api/checks/%d", cfg.ID),
		map[string]any{"is_enabled": false}, &updated)
	if resp.StatusCode != http.StatusOK || updated.IsEnabled {
		t.Fatalf("disable: status=%d cfg=%+v", resp.StatusCode, updated)
	}

	resp = f.do(t, "DELETE", fmt.Sprintf("/api/checks/%d", cfg.ID), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete check status = %d, want 200", resp.StatusCode)
	}
	resp = f.do(t, "GET", fmt.Sprintf("/api/checks/%d", cfg.ID), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted check status = %d, want 404", resp.StatusCode)
	}
}

func TestChannelEndpointsMaskSecrets(t *testing.T) {
	f := newAPIFixture(t, false)

	resp := f.do(t, "POST", "/api/channels",
		map[string]any{"name": "ops", "channel_type": "slack"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid config status = %d, want 400", resp.StatusCode)
	}

	var ch models.NotificationChannel
	resp = f.do(t, "POST", "/api/channels", map[string]any{
		"name":         "ops hook",
		"channel_type": "webhook",
		"configuration": map[string]any{
			"url":        "https://hooks.example.com/x",
			"auth_token": "tok123",
		},
	}, &ch)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create channel status = %d, want 201", resp.StatusCode)
	}
	if ch.Configuration["auth_token"] != notify.SecretMask {
		t.Errorf("auth_token = %v, want masked", ch.Configuration["auth_token"])
	}
	if ch.Configuration["url"] != "https://hooks.example.com/x" {
		t.Errorf("url = %v", ch.Configuration["url"])
	}

	// Round-tripping the masked config must not clobber the secret.
	var updated models.NotificationChannel
	ch.Configuration["url"] = "https://hooks.example.com/y"
	resp = f.do(t, "PUT", fmt.Sprintf("/api/channels/%d", ch.ID),
		map[string]any{"configuration": ch.Configuration}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update channel status = %d, want 200", resp.StatusCode)
	}
	stored, err := notify.GetChannel(f.conn, f.orgID, ch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Configuration["auth_token"] != "tok123" {
		t.Errorf("stored auth_token = %v, want original secret", stored.Configuration["auth_token"])
	}
	if stored.Configuration["url"] != "https://hooks.example.com/y" {
		t.Errorf("stored url = %v", stored.Configuration["url"])
	}

	var types []map[string]any
	resp = f.do(t, "GET", "/api/channel-types", nil, &types)
	if resp.StatusCode != http.StatusOK || len(types) == 0 {
		t.Fatalf("channel-types: status=%d len=%d", resp.StatusCode, len(types))
	}
}

func TestRuleEndpoints(t *testing.T) {
	f := newAPIFixture(t, false)

	var ch models.NotificationChannel
	f.do(t, "POST", "/api/channels", map[string]any{
		"name":          "ops hook",
		"channel_type":  "webhook",
		"configuration": map[string]any{"url": "https://hooks.example.com/x"},
	}, &ch)

	resp := f.do(t, "POST", "/api/rules", map[string]any{
		"name": "bad", "channel_id": ch.ID, "trigger": "full_moon",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid trigger status = %d, want 400", resp.StatusCode)
	}

	var rule models.NotificationRule
	resp = f.do(t, "POST", "/api/rules", map[string]any{
		"name": "on failure", "channel_id": ch.ID, "trigger": "check_failure",
	}, &rule)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create rule status = %d, want 201", resp.StatusCode)
	}
	if rule.ConsecutiveFailures != 1 || !rule.IsEnabled {
		t.Errorf("rule defaults: %+v", rule)
	}

	var got models.NotificationRule
	resp = f.do(t, "PUT", fmt.Sprintf("/api/rules/%d", rule.ID),
		map[string]any{"consecutive_failures": 3}, &got)
	if resp.StatusCode != http.StatusOK || got.ConsecutiveFailures != 3 {
		t.Fatalf("update rule: status=%d rule=%+v", resp.StatusCode, got)
	}

	var logs []models.NotificationLog
	resp = f.do(t, "GET", "/api/notifications/logs", nil, &logs)
	if resp.StatusCode != http.StatusOK || len(logs) != 0 {
		t.Fatalf("logs: status=%d len=%d", resp.StatusCode, len(logs))
	}

	resp = f.do(t, "DELETE", fmt.Sprintf("/api/rules/%d", rule.ID), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete rule status = %d, want 200", resp.StatusCode)
	}
	resp = f.do(t, "GET", fmt.Sprintf("/api/rules/%d", rule.ID), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted rule status = %d, want 404", resp.StatusCode)
	}
}

func TestIncidentEndpoints(t *testing.T) {
	f := newAPIFixture(t, false)

	var site models.Site
	f.do(t, "POST", "/api/sites",
		map[string]string{"name": "Shop", "url": "https://shop.example.com"}, &site)
	var cfg models.CheckConfiguration
	f.do(t, "POST", fmt.Sprintf("/api/sites/%d/checks", site.ID),
		map[string]any{"check_type": "http", "name": "uptime"}, &cfg)

	res, err := f.conn.Exec(`
		INSERT INTO incidents (check_configuration_id, status, title, failure_count)
		VALUES (?, 'open', 'uptime failing', 2)`, cfg.ID)
	if err != nil {
		t.Fatal(err)
	}
	incidentID, _ := res.LastInsertId()

	var list []models.Incident
	resp := f.do(t, "GET", "/api/incidents?status=open", nil, &list)
	if resp.StatusCode != http.StatusOK || len(list) != 1 {
		t.Fatalf("list incidents: status=%d len=%d", resp.StatusCode, len(list))
	}

	var inc models.Incident
	resp = f.do(t, "POST", fmt.Sprintf("/api/incidents/%d/acknowledge", incidentID), nil, &inc)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge status = %d, want 200", resp.StatusCode)
	}
	if inc.Status != models.IncidentAcknowledged || inc.AcknowledgedAt == nil {
		t.Errorf("incident = %+v", inc)
	}

	resp = f.do(t, "POST", fmt.Sprintf("/api/incidents/%d/acknowledge", incidentID), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double acknowledge status = %d, want 404", resp.StatusCode)
	}

	resp = f.do(t, "POST", "/api/incidents/999/acknowledge", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown incident status = %d, want 404", resp.StatusCode)
	}
}
