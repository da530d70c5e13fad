package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(path string) (*sql.DB, error) {
	if err := ensureDirectory(path); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")

	if err = Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureDirectory(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}
	return nil
}

// Migrate creates all tables and indexes. Statements are idempotent so
// the full list runs on every startup.
func Migrate(db *sql.DB) error {
	statements := []struct {
		label string
		sql   string
	}{
		{"organizations", `
			CREATE TABLE IF NOT EXISTS organizations (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				name       TEXT NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);`},

		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				organization_id INTEGER NOT NULL,
				username        TEXT UNIQUE NOT NULL,
				password_hash   TEXT NOT NULL,
				created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE
			);`},

		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				token      TEXT PRIMARY KEY,
				user_id    INTEGER NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);`},

		{"sites", `
			CREATE TABLE IF NOT EXISTS sites (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				organization_id INTEGER NOT NULL,
				name            TEXT NOT NULL,
				url             TEXT NOT NULL,
				description     TEXT,
				is_active       INTEGER DEFAULT 1,
				created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_sites_org ON sites(organization_id);`},

		{"check_configurations", `
			CREATE TABLE IF NOT EXISTS check_configurations (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				site_id          INTEGER NOT NULL,
				check_type       TEXT NOT NULL,
				name             TEXT NOT NULL,
				configuration    TEXT NOT NULL DEFAULT '{}',
				interval_seconds INTEGER NOT NULL DEFAULT 300,
				is_enabled       INTEGER DEFAULT 1,
				created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_checks_site ON check_configurations(site_id);
			CREATE INDEX IF NOT EXISTS idx_checks_type ON check_configurations(check_type);`},

		{"check_results", `
			CREATE TABLE IF NOT EXISTS check_results (
				id                     INTEGER PRIMARY KEY AUTOINCREMENT,
				check_configuration_id INTEGER NOT NULL,
				status                 TEXT NOT NULL,
				response_time_ms       INTEGER,
				error_message          TEXT,
				result_data            TEXT,
				checked_at             DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (check_configuration_id) REFERENCES check_configurations(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_results_config ON check_results(check_configuration_id);
			CREATE INDEX IF NOT EXISTS idx_results_checked ON check_results(checked_at);`},

		{"incidents", `
			CREATE TABLE IF NOT EXISTS incidents (
				id                     INTEGER PRIMARY KEY AUTOINCREMENT,
				check_configuration_id INTEGER NOT NULL,
				status                 TEXT NOT NULL DEFAULT 'open',
				title                  TEXT NOT NULL,
				description            TEXT,
				failure_count          INTEGER NOT NULL DEFAULT 1,
				started_at             DATETIME DEFAULT CURRENT_TIMESTAMP,
				acknowledged_at        DATETIME,
				resolved_at            DATETIME,
				FOREIGN KEY (check_configuration_id) REFERENCES check_configurations(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_incidents_config ON incidents(check_configuration_id);
			CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);`},

		{"notification_channels", `
			CREATE TABLE IF NOT EXISTS notification_channels (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				organization_id INTEGER NOT NULL,
				name            TEXT NOT NULL,
				channel_type    TEXT NOT NULL,
				configuration   TEXT NOT NULL DEFAULT '{}',
				is_enabled      INTEGER DEFAULT 1,
				created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_channels_org  ON notification_channels(organization_id);
			CREATE INDEX IF NOT EXISTS idx_channels_type ON notification_channels(channel_type);`},

		{"notification_rules", `
			CREATE TABLE IF NOT EXISTS notification_rules (
				id                   INTEGER PRIMARY KEY AUTOINCREMENT,
				organization_id      INTEGER NOT NULL,
				channel_id           INTEGER NOT NULL,
				name                 TEXT NOT NULL,
				"trigger"            TEXT NOT NULL,
				site_ids             TEXT,
				check_types          TEXT,
				consecutive_failures INTEGER NOT NULL DEFAULT 1,
				is_enabled           INTEGER DEFAULT 1,
				created_at           DATETIME DEFAULT CURRENT_TIMESTAMP,
				updated_at           DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE,
				FOREIGN KEY (channel_id) REFERENCES notification_channels(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_rules_org     ON notification_rules(organization_id);
			CREATE INDEX IF NOT EXISTS idx_rules_trigger ON notification_rules("trigger");`},

		{"notification_logs", `
			CREATE TABLE IF NOT EXISTS notification_logs (
				id              INTEGER PRIMARY KEY AUTOINCREMENT,
				rule_id         INTEGER NOT NULL,
				check_result_id INTEGER,
				incident_id     INTEGER,
				status          TEXT NOT NULL DEFAULT 'pending',
				error_message   TEXT,
				sent_at         DATETIME DEFAULT CURRENT_TIMESTAMP,
				FOREIGN KEY (rule_id) REFERENCES notification_rules(id) ON DELETE CASCADE,
				FOREIGN KEY (check_result_id) REFERENCES check_results(id) ON DELETE SET NULL,
				FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE SET NULL
			);
			CREATE INDEX IF NOT EXISTS idx_logs_rule   ON notification_logs(rule_id);
			CREATE INDEX IF NOT EXISTS idx_logs_status ON notification_logs(status);`},
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("migration %s: %w", stmt.label, err)
		}
	}
	return nil
}
