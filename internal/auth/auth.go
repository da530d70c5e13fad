// Package auth provides bcrypt-backed users, session tokens and the
// HTTP middleware that scopes every request to an organization.
package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sitewatch/internal/models"
)

const timeFormat = "2006-01-02 15:04:05"

// sessionTTL is how long a session token stays valid.
const sessionTTL = 7 * 24 * time.Hour

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken creates a secure random session token.
func GenerateToken() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// ── Users ───────────────────────────────────────────────────────────────

// CreateUser inserts a user with a bcrypt-hashed password.
func CreateUser(db *sql.DB, orgID int64, username, password string) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec(`
		INSERT INTO users (organization_id, username, password_hash)
		VALUES (?, ?, ?)`, orgID, username, hash)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

// GetUserByUsername retrieves a user, or nil when unknown.
func GetUserByUsername(db *sql.DB, username string) (*models.User, error) {
	var u models.User
	var createdAt string
	err := db.QueryRow(`
		SELECT id, organization_id, username, password_hash, created_at
		FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.OrganizationID, &u.Username, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return &u, nil
}

// CountUsers returns the total user count, used for admin seeding.
func CountUsers(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// ── Sessions ────────────────────────────────────────────────────────────

// Login verifies credentials and creates a session. It returns nil
// without error when the credentials are wrong.
func Login(db *sql.DB, username, password string) (*models.Session, error) {
	user, err := GetUserByUsername(db, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, nil
	}

	token := GenerateToken()
	expiresAt := time.Now().UTC().Add(sessionTTL)
	_, err = db.Exec(`
		INSERT INTO sessions (token, user_id, expires_at)
		VALUES (?, ?, ?)`, token, user.ID, expiresAt.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &models.Session{
		Token:          token,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Username:       user.Username,
		ExpiresAt:      expiresAt,
	}, nil
}

// GetSession retrieves a live session by token, or nil.
func GetSession(db *sql.DB, token string) *models.Session {
	if token == "" {
		return nil
	}
	var s models.Session
	var expiresAt string
	err := db.QueryRow(`
		SELECT s.token, s.user_id, u.organization_id, u.username, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > datetime('now')`, token).
		Scan(&s.Token, &s.UserID, &s.OrganizationID, &s.Username, &expiresAt)
	if err != nil {
		return nil
	}
	s.ExpiresAt, _ = time.Parse(timeFormat, expiresAt)
	return &s
}

// DeleteSession removes a session token.
func DeleteSession(db *sql.DB, token string) {
	db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
}

// CleanupExpiredSessions removes expired sessions.
func CleanupExpiredSessions(db *sql.DB) {
	db.Exec(`DELETE FROM sessions WHERE expires_at < datetime('now')`)
}

// SeedAdmin creates the default organization and admin user on first
// startup. When ADMIN_PASS is unset a random password is generated and
// returned so the operator can read it from the startup log.
func SeedAdmin(db *sql.DB, cfg models.Config) (created bool, orgID int64, generatedPass string, err error) {
	n, err := CountUsers(db)
	if err != nil {
		return false, 0, "", err
	}
	if n > 0 {
		return false, 0, "", nil
	}

	password := cfg.AdminPass
	if password == "" {
		password = GenerateToken()[:12]
		generatedPass = password
	}

	res, err := db.Exec(`INSERT INTO organizations (name) VALUES (?)`, "Default")
	if err != nil {
		return false, 0, "", fmt.Errorf("seed organization: %w", err)
	}
	orgID, _ = res.LastInsertId()

	if _, err := CreateUser(db, orgID, cfg.AdminUser, password); err != nil {
		return false, 0, "", err
	}
	return true, orgID, generatedPass, nil
}
