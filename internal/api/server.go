// Package api exposes the REST surface: auth, sites, checks, results,
// notification channels and rules, incidents and the live stream.
package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"sitewatch/internal/auth"
	"sitewatch/internal/checks"
	"sitewatch/internal/models"
	"sitewatch/internal/notify"
	"sitewatch/internal/scheduler"
	"sitewatch/internal/stream"
)

// Server bundles the handlers' dependencies.
type Server struct {
	DB        *sql.DB
	Logger    *zap.Logger
	Config    models.Config
	Checks    *checks.Registry
	Channels  *notify.Registry
	Scheduler *scheduler.Scheduler
	Stream    *stream.Hub

	// FallbackOrgID is the organization requests run under when auth
	// is disabled.
	FallbackOrgID int64
}

// Router assembles the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.DB, s.Config, s.FallbackOrgID))

		r.Get("/api/auth/me", s.handleMe)

		r.Route("/api/sites", func(r chi.Router) {
			r.Get("/", s.handleListSites)
			r.Post("/", s.handleCreateSite)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSite)
				r.Put("/", s.handleUpdateSite)
				r.Delete("/", s.handleDeleteSite)
				r.Get("/checks", s.handleListChecks)
				r.Post("/checks", s.handleCreateCheck)
			})
		})

		r.Route("/api/checks", func(r chi.Router) {
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetCheck)
				r.Put("/", s.handleUpdateCheck)
				r.Delete("/", s.handleDeleteCheck)
				r.Post("/run", s.handleRunCheck)
				r.Get("/results", s.handleListResults)
			})
		})
		r.Get("/api/check-types", s.handleCheckTypes)

		r.Route("/api/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.Post("/", s.handleCreateChannel)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetChannel)
				r.Put("/", s.handleUpdateChannel)
				r.Delete("/", s.handleDeleteChannel)
				r.Post("/test", s.handleTestChannel)
			})
		})
		r.Get("/api/channel-types", s.handleChannelTypes)

		r.Route("/api/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
			})
		})
		r.Get("/api/notifications/logs", s.handleListLogs)

		r.Route("/api/incidents", func(r chi.Router) {
			r.Get("/", s.handleListIncidents)
			r.Post("/{id}/acknowledge", s.handleAcknowledgeIncident)
		})

		r.Get("/api/stream", s.Stream.HandleConnection)
	})

	return r
}

// ── shared handler helpers ──────────────────────────────────────────────

func (s *Server) session(r *http.Request) *models.Session {
	return auth.SessionFromContext(r.Context())
}

func (s *Server) orgID(r *http.Request) int64 {
	if sess := s.session(r); sess != nil {
		return sess.OrganizationID
	}
	return s.FallbackOrgID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.Logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
