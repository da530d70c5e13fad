package api

import (
	"encoding/json"
	"net/http"
	"time"

	"sitewatch/internal/checks"
	"sitewatch/internal/models"
	"sitewatch/internal/sites"
)

type checkPayload struct {
	CheckType       string         `json:"check_type"`
	Name            string         `json:"name"`
	Configuration   map[string]any `json:"configuration"`
	IntervalSeconds int            `json:"interval_seconds"`
	IsEnabled       *bool          `json:"is_enabled"`
}

func (s *Server) handleCheckTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Checks.Schemas())
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	siteID, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}
	site, err := sites.Get(s.DB, s.orgID(r), siteID)
	if err != nil {
		s.internalError(w, "get site", err)
		return
	}
	if site == nil {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}

	out, err := checks.ListConfigurationsBySite(s.DB, siteID)
	if err != nil {
		s.internalError(w, "list checks", err)
		return
	}
	if out == nil {
		out = []models.CheckConfiguration{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	siteID, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}
	site, err := sites.Get(s.DB, s.orgID(r), siteID)
	if err != nil {
		s.internalError(w, "get site", err)
		return
	}
	if site == nil {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}

	var p checkPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.CheckType == "" || p.Name == "" {
		writeError(w, http.StatusBadRequest, "check_type and name required")
		return
	}
	if !s.Checks.IsRegistered(p.CheckType) {
		writeError(w, http.StatusBadRequest, "unknown check type: "+p.CheckType)
		return
	}
	if p.Configuration == nil {
		p.Configuration = map[string]any{}
	}
	if err := s.Checks.ValidateConfig(p.CheckType, p.Configuration); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.IntervalSeconds <= 0 {
		p.IntervalSeconds = 300
	}

	cfg := &models.CheckConfiguration{
		SiteID:          siteID,
		CheckType:       p.CheckType,
		Name:            p.Name,
		Configuration:   p.Configuration,
		IntervalSeconds: p.IntervalSeconds,
		IsEnabled:       true,
	}
	if p.IsEnabled != nil {
		cfg.IsEnabled = *p.IsEnabled
	}
	cfg.ID, err = checks.CreateConfiguration(s.DB, cfg)
	if err != nil {
		s.internalError(w, "create check", err)
		return
	}

	if cfg.IsEnabled && site.IsActive {
		s.Scheduler.Schedule(cfg.ID, time.Duration(cfg.IntervalSeconds)*time.Second)
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check id")
		return
	}
	cfg, err := checks.GetConfigurationForOrg(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get check", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check id")
		return
	}
	cfg, err := checks.GetConfigurationForOrg(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get check", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	var p checkPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if p.CheckType != "" {
		if !s.Checks.IsRegistered(p.CheckType) {
			writeError(w, http.StatusBadRequest, "unknown check type: "+p.CheckType)
			return
		}
		cfg.CheckType = p.CheckType
	}
	if p.Name != "" {
		cfg.Name = p.Name
	}
	if p.Configuration != nil {
		cfg.Configuration = p.Configuration
	}
	if p.IntervalSeconds > 0 {
		cfg.IntervalSeconds = p.IntervalSeconds
	}
	if p.IsEnabled != nil {
		cfg.IsEnabled = *p.IsEnabled
	}
	if err := s.Checks.ValidateConfig(cfg.CheckType, cfg.Configuration); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := checks.UpdateConfiguration(s.DB, cfg); err != nil {
		s.internalError(w, "update check", err)
		return
	}

	if cfg.IsEnabled {
		s.Scheduler.Schedule(cfg.ID, time.Duration(cfg.IntervalSeconds)*time.Second)
	} else {
		s.Scheduler.Unschedule(cfg.ID)
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDeleteCheck(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check id")
		return
	}
	cfg, err := checks.GetConfigurationForOrg(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get check", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	if err := checks.DeleteConfiguration(s.DB, id); err != nil {
		s.internalError(w, "delete check", err)
		return
	}
	s.Scheduler.Unschedule(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check id")
		return
	}
	cfg, err := checks.GetConfigurationForOrg(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get check", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	if err := s.Scheduler.RunOnce(r.Context(), id); err != nil {
		s.internalError(w, "run check", err)
		return
	}
	results, err := checks.ListResults(s.DB, id, 1)
	if err != nil {
		s.internalError(w, "load result", err)
		return
	}
	if len(results) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
		return
	}
	writeJSON(w, http.StatusOK, results[0])
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check id")
		return
	}
	cfg, err := checks.GetConfigurationForOrg(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get check", err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	out, err := checks.ListResults(s.DB, id, limitParam(r, 50, 500))
	if err != nil {
		s.internalError(w, "list results", err)
		return
	}
	if out == nil {
		out = []models.CheckResult{}
	}
	writeJSON(w, http.StatusOK, out)
}
