package auth

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"sitewatch/internal/models"
)

type contextKey string

// sessionKey is the context key the middleware stores the session
// under.
const sessionKey contextKey = "session"

// Middleware rejects requests without a valid session and stows the
// session in the request context. When auth is disabled every request
// runs as the fallback organization.
func Middleware(db *sql.DB, cfg models.Config, fallbackOrgID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.AuthEnabled {
				ctx := context.WithValue(r.Context(), sessionKey, &models.Session{
					OrganizationID: fallbackOrgID,
					Username:       cfg.AdminUser,
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			session := SessionFromRequest(db, r)
			if session == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromRequest extracts a session from the cookie or the
// Authorization header.
func SessionFromRequest(db *sql.DB, r *http.Request) *models.Session {
	var token string
	if cookie, err := r.Cookie("session"); err == nil {
		token = cookie.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	return GetSession(db, token)
}

// SessionFromContext returns the session the middleware stored, or nil
// on unauthenticated requests.
func SessionFromContext(ctx context.Context) *models.Session {
	if s, ok := ctx.Value(sessionKey).(*models.Session); ok {
		return s
	}
	return nil
}
