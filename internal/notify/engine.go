package notify

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"sitewatch/internal/checks"
	"sitewatch/internal/incidents"
	"sitewatch/internal/models"
)

// Engine derives triggers from check results, matches them against an
// organization's rules and delivers through the matched channels. One
// delivery log row is written per matched rule.
type Engine struct {
	db       *sql.DB
	registry *Registry
	logger   *zap.Logger
}

// NewEngine builds the rule engine.
func NewEngine(db *sql.DB, registry *Registry, logger *zap.Logger) *Engine {
	return &Engine{db: db, registry: registry, logger: logger}
}

// HandleCheckResult is invoked by the executor after every stored
// result. A delivery failure never propagates back to the executor, it
// only marks the log row failed.
func (e *Engine) HandleCheckResult(ctx context.Context, cfg *models.CheckConfiguration,
	site *models.Site, result *models.CheckResult, transition *incidents.Transition) error {

	triggers, err := e.deriveTriggers(result, transition)
	if err != nil {
		return err
	}

	for _, trigger := range triggers {
		rules, err := ListEnabledRulesForTrigger(e.db, site.OrganizationID, trigger)
		if err != nil {
			return err
		}
		for _, rule := range rules {
			match, err := e.ruleMatches(&rule, cfg, site, trigger)
			if err != nil {
				e.logger.Error("rule evaluation failed",
					zap.Int64("rule_id", rule.ID), zap.Error(err))
				continue
			}
			if !match {
				continue
			}
			e.deliver(ctx, &rule, cfg, site, result, trigger, transition)
		}
	}
	return nil
}

// deriveTriggers maps a result and incident transition to the triggers
// it raises. Failures alert, successes alert only when they end a
// failure; warnings raise nothing.
func (e *Engine) deriveTriggers(result *models.CheckResult, transition *incidents.Transition) ([]models.Trigger, error) {
	var triggers []models.Trigger

	switch result.Status {
	case models.StatusFailure:
		triggers = append(triggers, models.TriggerCheckFailure)
	case models.StatusSuccess:
		prev, err := checks.PreviousResult(e.db, result.CheckConfigurationID, result.ID)
		if err != nil {
			return nil, fmt.Errorf("load previous result: %w", err)
		}
		if prev != nil && prev.Status == models.StatusFailure {
			triggers = append(triggers, models.TriggerCheckRecovery)
		}
	}

	if transition != nil {
		if transition.Opened {
			triggers = append(triggers, models.TriggerIncidentOpened)
		}
		if transition.Resolved {
			triggers = append(triggers, models.TriggerIncidentResolved)
		}
	}
	return triggers, nil
}

// ruleMatches applies the rule's site, check-type and streak filters.
// Empty filters match everything.
func (e *Engine) ruleMatches(rule *models.NotificationRule, cfg *models.CheckConfiguration,
	site *models.Site, trigger models.Trigger) (bool, error) {

	if len(rule.SiteIDs) > 0 && !containsInt64(rule.SiteIDs, site.ID) {
		return false, nil
	}
	if len(rule.CheckTypes) > 0 && !containsString(rule.CheckTypes, cfg.CheckType) {
		return false, nil
	}
	if trigger == models.TriggerCheckFailure && rule.ConsecutiveFailures > 1 {
		streak, err := checks.ConsecutiveFailures(e.db, cfg.ID)
		if err != nil {
			return false, fmt.Errorf("count failures: %w", err)
		}
		if streak < rule.ConsecutiveFailures {
			return false, nil
		}
	}
	return true, nil
}

// deliver writes a pending log row, sends through the rule's channel
// and completes the row as sent or failed.
func (e *Engine) deliver(ctx context.Context, rule *models.NotificationRule,
	cfg *models.CheckConfiguration, site *models.Site, result *models.CheckResult,
	trigger models.Trigger, transition *incidents.Transition) {

	logEntry := &models.NotificationLog{
		RuleID:        rule.ID,
		CheckResultID: result.ID,
		Status:        models.DeliveryPending,
	}
	payload := Payload{
		Trigger:      trigger,
		SiteName:     site.Name,
		SiteURL:      site.URL,
		CheckName:    cfg.Name,
		CheckType:    cfg.CheckType,
		Status:       result.Status,
		ErrorMessage: result.ErrorMessage,
		CheckedAt:    result.CheckedAt,
	}
	if transition != nil && transition.Incident != nil {
		logEntry.IncidentID = &transition.Incident.ID
		payload.IncidentID = &transition.Incident.ID
		payload.FailureCount = transition.Incident.FailureCount
	}

	logID, err := CreateLog(e.db, logEntry)
	if err != nil {
		e.logger.Error("record delivery failed",
			zap.Int64("rule_id", rule.ID), zap.Error(err))
		return
	}

	sendErr := e.send(ctx, rule, payload)
	status := models.DeliverySent
	errMsg := ""
	if sendErr != nil {
		status = models.DeliveryFailed
		errMsg = sendErr.Error()
		e.logger.Warn("notification delivery failed",
			zap.Int64("rule_id", rule.ID),
			zap.String("trigger", string(trigger)),
			zap.Error(sendErr))
	} else {
		e.logger.Info("notification delivered",
			zap.Int64("rule_id", rule.ID),
			zap.String("trigger", string(trigger)),
			zap.String("site", site.Name))
	}
	if err := CompleteLog(e.db, logID, status, errMsg); err != nil {
		e.logger.Error("update delivery log failed",
			zap.Int64("log_id", logID), zap.Error(err))
	}
}

func (e *Engine) send(ctx context.Context, rule *models.NotificationRule, p Payload) error {
	channel, err := GetChannel(e.db, rule.OrganizationID, rule.ChannelID)
	if err != nil {
		return fmt.Errorf("load channel %d: %w", rule.ChannelID, err)
	}
	if channel == nil {
		return fmt.Errorf("channel %d not found", rule.ChannelID)
	}
	if !channel.IsEnabled {
		return fmt.Errorf("channel %d is disabled", channel.ID)
	}
	impl, err := e.registry.Get(channel.ChannelType)
	if err != nil {
		return err
	}
	return impl.Send(ctx, channel.Configuration, p)
}

func containsInt64(haystack []int64, needle int64) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
