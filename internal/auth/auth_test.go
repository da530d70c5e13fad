package auth

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"sitewatch/internal/db"
	"sitewatch/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
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
	return conn
}

func createTestOrg(t *testing.T, conn *sql.DB) int64 {
	t.Helper()
	res, err := conn.Exec(`INSERT INTO organizations (name) VALUES ('acme')`)
	if err != nil {
		t.Fatal(err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("password stored in the clear")
	}
	if !CheckPassword(hash, "hunter2") {
		t.Error("CheckPassword rejects the right password")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("CheckPassword accepts a wrong password")
	}
}

func TestGenerateToken(t *testing.T) {
	a := GenerateToken()
	b := GenerateToken()
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("two tokens are identical")
	}
}

func TestCreateAndGetUser(t *testing.T) {
	conn := setupTestDB(t)
	orgID := createTestOrg(t, conn)

	id, err := CreateUser(conn, orgID, "alice", "s3cret")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	user, err := GetUserByUsername(conn, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("GetUserByUsername returned nil for existing user")
	}
	if user.ID != id || user.OrganizationID != orgID {
		t.Errorf("user = %+v", user)
	}
	if user.PasswordHash == "s3cret" {
		t.Error("password stored in the clear")
	}
	if !CheckPassword(user.PasswordHash, "s3cret") {
		t.Error("stored hash does not verify")
	}

	missing, err := GetUserByUsername(conn, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("GetUserByUsername(nobody) = %+v, want nil", missing)
	}

	if _, err := CreateUser(conn, orgID, "alice", "other"); err == nil {
		t.Error("duplicate username accepted")
	}

	n, err := CountUsers(conn)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountUsers = %d, want 1", n)
	}
}

func TestLoginAndSessions(t *testing.T) {
	conn := setupTestDB(t)
	orgID := createTestOrg(t, conn)
	if _, err := CreateUser(conn, orgID, "alice", "s3cret"); err != nil {
		t.Fatal(err)
	}

	session, err := Login(conn, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session == nil {
		t.Fatal("Login returned nil for valid credentials")
	}
	if session.OrganizationID != orgID || session.Username != "alice" {
		t.Errorf("session = %+v", session)
	}
	if session.ExpiresAt.Before(time.Now()) {
		t.Error("session already expired")
	}

	// Wrong credentials return nil without error.
	bad, err := Login(conn, "alice", "wrong")
	if err != nil {
		t.Fatal(err)
	}
	if bad != nil {
		t.Error("Login accepted a wrong password")
	}
	bad, err = Login(conn, "nobody", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if bad != nil {
		t.Error("Login accepted an unknown user")
	}

	got := GetSession(conn, session.Token)
	if got == nil {
		t.Fatal("GetSession returned nil for live token")
	}
	if got.OrganizationID != orgID || got.Username != "alice" {
		t.Errorf("GetSession = %+v", got)
	}
	if GetSession(conn, "bogus") != nil {
		t.Error("GetSession returned a session for an unknown token")
	}
	if GetSession(conn, "") != nil {
		t.Error("GetSession returned a session for an empty token")
	}

	DeleteSession(conn, session.Token)
	if GetSession(conn, session.Token) != nil {
		t.Error("session survived DeleteSession")
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	conn := setupTestDB(t)
	orgID := createTestOrg(t, conn)
	userID, err := CreateUser(conn, orgID, "alice", "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	expired := time.Now().UTC().Add(-time.Hour).Format(timeFormat)
	live := time.Now().UTC().Add(time.Hour).Format(timeFormat)
	if _, err := conn.Exec(`
		INSERT INTO sessions (token, user_id, expires_at) VALUES
		('dead', ?, ?), ('live', ?, ?)`, userID, expired, userID, live); err != nil {
		t.Fatal(err)
	}

	if GetSession(conn, "dead") != nil {
		t.Error("GetSession returned an expired session")
	}

	CleanupExpiredSessions(conn)
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("sessions after cleanup = %d, want 1", n)
	}
	if GetSession(conn, "live") == nil {
		t.Error("cleanup removed a live session")
	}
}

func TestSeedAdmin(t *testing.T) {
	conn := setupTestDB(t)
	cfg := models.Config{AdminUser: "admin", AdminPass: "changeme"}

	created, orgID, generated, err := SeedAdmin(conn, cfg)
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	if !created {
		t.Fatal("SeedAdmin did not create the admin on an empty database")
	}
	if generated != "" {
		t.Errorf("generated password returned despite ADMIN_PASS: %q", generated)
	}
	if orgID == 0 {
		t.Error("orgID = 0")
	}

	session, err := Login(conn, "admin", "changeme")
	if err != nil {
		t.Fatal(err)
	}
	if session == nil {
		t.Fatal("cannot log in as seeded admin")
	}
	if session.OrganizationID != orgID {
		t.Errorf("admin org = %d, want %d", session.OrganizationID, orgID)
	}

	// Second call is a no-op once any user exists.
	created, _, _, err = SeedAdmin(conn, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("SeedAdmin created a second admin")
	}
	n, _ := CountUsers(conn)
	if n != 1 {
		t.Errorf("users = %d, want 1", n)
	}
}

func TestSeedAdminGeneratesPassword(t *testing.T) {
	conn := setupTestDB(t)
	cfg := models.Config{AdminUser: "admin"}

	created, _, generated, err := SeedAdmin(conn, cfg)
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	if !created {
		t.Fatal("SeedAdmin did not create the admin")
	}
	if len(generated) != 12 {
		t.Fatalf("generated password length = %d, want 12", len(generated))
	}

	session, err := Login(conn, "admin", generated)
	if err != nil {
		t.Fatal(err)
	}
	if session == nil {
		t.Error("cannot log in with the generated password")
	}
}
