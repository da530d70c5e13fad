package api

import (
	"encoding/json"
	"net/http"

	"sitewatch/internal/models"
	"sitewatch/internal/sites"
)

type sitePayload struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	out, err := sites.List(s.DB, s.orgID(r))
	if err != nil {
		s.internalError(w, "list sites", err)
		return
	}
	if out == nil {
		out = []models.Site{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var p sitePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" || p.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url required")
		return
	}

	site := &models.Site{
		OrganizationID: s.orgID(r),
		Name:           p.Name,
		URL:            p.URL,
		Description:    p.Description,
		IsActive:       true,
	}
	if p.IsActive != nil {
		site.IsActive = *p.IsActive
	}
	id, err := sites.Create(s.DB, site)
	if err != nil {
		s.internalError(w, "create site", err)
		return
	}

	created, err := sites.Get(s.DB, site.OrganizationID, id)
	if err != nil {
		s.internalError(w, "load created site", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}
	site, err := sites.Get(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get site", err)
		return
	}
	if site == nil {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}
	site, err := sites.Get(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get site", err)
		return
	}
	if site == nil {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}

	var p sitePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if p.Name != "" {
		site.Name = p.Name
	}
	if p.URL != "" {
		site.URL = p.URL
	}
	if p.Description != "" {
		site.Description = p.Description
	}
	if p.IsActive != nil {
		site.IsActive = *p.IsActive
	}
	if err := sites.Update(s.DB, site); err != nil {
		s.internalError(w, "update site", err)
		return
	}

	// Activation changes affect which checks should be ticking.
	if err := s.Scheduler.Resync(); err != nil {
		s.internalError(w, "resync schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}
	if err := sites.Delete(s.DB, s.orgID(r), id); err != nil {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	if err := s.Scheduler.Resync(); err != nil {
		s.internalError(w, "resync schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
