package api

import (
	"net/http"

	"sitewatch/internal/incidents"
	"sitewatch/internal/models"
)

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	out, err := incidents.ListForOrg(s.DB, s.orgID(r), status, limitParam(r, 100, 1000))
	if err != nil {
		s.internalError(w, "list incidents", err)
		return
	}
	if out == nil {
		out = []models.Incident{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcknowledgeIncident(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}

	// Scope the lookup to the caller's organization before mutating.
	list, err := incidents.ListForOrg(s.DB, s.orgID(r), string(models.IncidentOpen), 1000)
	if err != nil {
		s.internalError(w, "list incidents", err)
		return
	}
	owned := false
	for _, inc := range list {
		if inc.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, http.StatusNotFound, "incident not found")
		return
	}

	if err := incidents.Acknowledge(s.DB, id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	inc, err := incidents.Get(s.DB, id)
	if err != nil {
		s.internalError(w, "get incident", err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}
