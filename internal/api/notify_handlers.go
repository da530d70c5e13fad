package api

import (
	"encoding/json"
	"net/http"

	"sitewatch/internal/models"
	"sitewatch/internal/notify"
)

// ── Channels ────────────────────────────────────────────────────────────

type channelPayload struct {
	Name          string         `json:"name"`
	ChannelType   string         `json:"channel_type"`
	Configuration map[string]any `json:"configuration"`
	IsEnabled     *bool          `json:"is_enabled"`
}

func (s *Server) handleChannelTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Channels.Schemas())
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	out, err := notify.ListChannels(s.DB, s.orgID(r))
	if err != nil {
		s.internalError(w, "list channels", err)
		return
	}
	for i := range out {
		out[i].Configuration = s.Channels.MaskSecrets(out[i].ChannelType, out[i].Configuration)
	}
	if out == nil {
		out = []models.NotificationChannel{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var p channelPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" || p.ChannelType == "" {
		writeError(w, http.StatusBadRequest, "name and channel_type required")
		return
	}
	if p.Configuration == nil {
		p.Configuration = map[string]any{}
	}
	if err := s.Channels.ValidateConfig(p.ChannelType, p.Configuration); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch := &models.NotificationChannel{
		OrganizationID: s.orgID(r),
		Name:           p.Name,
		ChannelType:    p.ChannelType,
		Configuration:  p.Configuration,
		IsEnabled:      true,
	}
	if p.IsEnabled != nil {
		ch.IsEnabled = *p.IsEnabled
	}
	var err error
	ch.ID, err = notify.CreateChannel(s.DB, ch)
	if err != nil {
		s.internalError(w, "create channel", err)
		return
	}
	ch.Configuration = s.Channels.MaskSecrets(ch.ChannelType, ch.Configuration)
	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	ch, err := notify.GetChannel(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get channel", err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	ch.Configuration = s.Channels.MaskSecrets(ch.ChannelType, ch.Configuration)
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	ch, err := notify.GetChannel(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get channel", err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	var p channelPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if p.Name != "" {
		ch.Name = p.Name
	}
	if p.ChannelType != "" {
		ch.ChannelType = p.ChannelType
	}
	if p.Configuration != nil {
		// A round-tripped mask must not overwrite the stored secret.
		ch.Configuration = s.Channels.UnmaskSecrets(ch.ChannelType, p.Configuration, ch.Configuration)
	}
	if p.IsEnabled != nil {
		ch.IsEnabled = *p.IsEnabled
	}
	if err := s.Channels.ValidateConfig(ch.ChannelType, ch.Configuration); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := notify.UpdateChannel(s.DB, ch); err != nil {
		s.internalError(w, "update channel", err)
		return
	}
	ch.Configuration = s.Channels.MaskSecrets(ch.ChannelType, ch.Configuration)
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	if err := notify.DeleteChannel(s.DB, s.orgID(r), id); err != nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}
	ch, err := notify.GetChannel(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get channel", err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusNotFound, "channel not found")
		return
	}

	impl, err := s.Channels.Get(ch.ChannelType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := impl.Test(r.Context(), ch.Configuration); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ── Rules ───────────────────────────────────────────────────────────────

type rulePayload struct {
	ChannelID           int64    `json:"channel_id"`
	Name                string   `json:"name"`
	Trigger             string   `json:"trigger"`
	SiteIDs             []int64  `json:"site_ids"`
	CheckTypes          []string `json:"check_types"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	IsEnabled           *bool    `json:"is_enabled"`
}

var validTriggers = map[models.Trigger]bool{
	models.TriggerCheckFailure:     true,
	models.TriggerCheckRecovery:    true,
	models.TriggerIncidentOpened:   true,
	models.TriggerIncidentResolved: true,
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	out, err := notify.ListRules(s.DB, s.orgID(r))
	if err != nil {
		s.internalError(w, "list rules", err)
		return
	}
	if out == nil {
		out = []models.NotificationRule{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var p rulePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Name == "" || p.ChannelID == 0 {
		writeError(w, http.StatusBadRequest, "name and channel_id required")
		return
	}
	trigger := models.Trigger(p.Trigger)
	if !validTriggers[trigger] {
		writeError(w, http.StatusBadRequest, "invalid trigger: "+p.Trigger)
		return
	}
	if p.ConsecutiveFailures <= 0 {
		p.ConsecutiveFailures = 1
	}

	rule := &models.NotificationRule{
		OrganizationID:      s.orgID(r),
		ChannelID:           p.ChannelID,
		Name:                p.Name,
		Trigger:             trigger,
		SiteIDs:             p.SiteIDs,
		CheckTypes:          p.CheckTypes,
		ConsecutiveFailures: p.ConsecutiveFailures,
		IsEnabled:           true,
	}
	if p.IsEnabled != nil {
		rule.IsEnabled = *p.IsEnabled
	}
	var err error
	rule.ID, err = notify.CreateRule(s.DB, rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	rule, err := notify.GetRule(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get rule", err)
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	rule, err := notify.GetRule(s.DB, s.orgID(r), id)
	if err != nil {
		s.internalError(w, "get rule", err)
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	var p rulePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if p.ChannelID != 0 {
		rule.ChannelID = p.ChannelID
	}
	if p.Name != "" {
		rule.Name = p.Name
	}
	if p.Trigger != "" {
		trigger := models.Trigger(p.Trigger)
		if !validTriggers[trigger] {
			writeError(w, http.StatusBadRequest, "invalid trigger: "+p.Trigger)
			return
		}
		rule.Trigger = trigger
	}
	if p.SiteIDs != nil {
		rule.SiteIDs = p.SiteIDs
	}
	if p.CheckTypes != nil {
		rule.CheckTypes = p.CheckTypes
	}
	if p.ConsecutiveFailures > 0 {
		rule.ConsecutiveFailures = p.ConsecutiveFailures
	}
	if p.IsEnabled != nil {
		rule.IsEnabled = *p.IsEnabled
	}
	if err := notify.UpdateRule(s.DB, rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	if err := notify.DeleteRule(s.DB, s.orgID(r), id); err != nil {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ── Delivery history ────────────────────────────────────────────────────

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	out, err := notify.ListLogs(s.DB, s.orgID(r), limitParam(r, 100, 1000))
	if err != nil {
		s.internalError(w, "list notification logs", err)
		return
	}
	if out == nil {
		out = []models.NotificationLog{}
	}
	writeJSON(w, http.StatusOK, out)
}
