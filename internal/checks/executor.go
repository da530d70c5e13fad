package checks

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"sitewatch/internal/events"
	"sitewatch/internal/incidents"
	"sitewatch/internal/models"
)

// executionCap bounds a single check run regardless of the plugin's
// own timeout configuration.
const executionCap = 120 * time.Second

// ResultHandler receives every stored result for follow-up processing.
// Handler errors are logged and never fail the execution.
type ResultHandler interface {
	HandleCheckResult(ctx context.Context, cfg *models.CheckConfiguration,
		site *models.Site, result *models.CheckResult, transition *incidents.Transition) error
}

// Executor runs check configurations end to end: load, execute, store,
// track incidents, publish and notify.
type Executor struct {
	db       *sql.DB
	registry *Registry
	bus      *events.Bus
	logger   *zap.Logger
	handler  ResultHandler
	sem      chan struct{}
	group    singleflight.Group
}

// NewExecutor builds an executor. maxConcurrent bounds parallel check
// runs across all configurations; handler may be nil.
func NewExecutor(db *sql.DB, registry *Registry, bus *events.Bus,
	logger *zap.Logger, handler ResultHandler, maxConcurrent int) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Executor{
		db:       db,
		registry: registry,
		bus:      bus,
		logger:   logger,
		handler:  handler,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Run executes one check configuration by ID. Concurrent calls for the
// same configuration coalesce into a single execution.
func (e *Executor) Run(ctx context.Context, configID int64) error {
	_, err, _ := e.group.Do(strconv.FormatInt(configID, 10), func() (any, error) {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return nil, e.run(ctx, configID)
	})
	return err
}

func (e *Executor) run(ctx context.Context, configID int64) error {
	cfg, err := GetConfiguration(e.db, configID)
	if err != nil {
		return fmt.Errorf("load check %d: %w", configID, err)
	}
	if cfg == nil {
		// Ticks race deletion; the schedule catches up on the next resync.
		e.logger.Debug("skipping deleted check", zap.Int64("check_id", configID))
		return nil
	}
	if !cfg.IsEnabled {
		e.logger.Debug("skipping disabled check", zap.Int64("check_id", configID))
		return nil
	}

	site, err := SiteForConfiguration(e.db, configID)
	if err != nil {
		return fmt.Errorf("load site for check %d: %w", configID, err)
	}
	if site == nil || !site.IsActive {
		e.logger.Debug("skipping check on inactive site", zap.Int64("check_id", configID))
		return nil
	}

	outcome := e.execute(ctx, cfg, site)

	result := &models.CheckResult{
		CheckConfigurationID: cfg.ID,
		Status:               outcome.Status,
		ResponseTimeMS:       outcome.ResponseTimeMS,
		ErrorMessage:         outcome.ErrorMessage,
		ResultData:           outcome.ResultData,
		CheckedAt:            time.Now().UTC(),
	}
	result.ID, err = InsertResult(e.db, result)
	if err != nil {
		return fmt.Errorf("store result for check %d: %w", cfg.ID, err)
	}

	e.logger.Info("check executed",
		zap.Int64("check_id", cfg.ID),
		zap.String("check_type", cfg.CheckType),
		zap.String("site", site.Name),
		zap.String("status", string(result.Status)),
		zap.String("error", result.ErrorMessage))

	title := fmt.Sprintf("%s check failing for %s", cfg.Name, site.Name)
	transition, err := incidents.ApplyResult(e.db, cfg.ID, title, result.Status)
	if err != nil {
		e.logger.Error("incident tracking failed",
			zap.Int64("check_id", cfg.ID), zap.Error(err))
	}

	e.bus.Publish(events.OrgChannel(site.OrganizationID), events.Event{
		Type:           "check_result",
		CheckID:        cfg.ID,
		SiteID:         site.ID,
		SiteName:       site.Name,
		CheckName:      cfg.Name,
		Status:         string(result.Status),
		ResponseTimeMS: result.ResponseTimeMS,
		CheckedAt:      result.CheckedAt,
		ErrorMessage:   result.ErrorMessage,
	})

	if e.handler != nil {
		if err := e.handler.HandleCheckResult(ctx, cfg, site, result, transition); err != nil {
			e.logger.Error("result handler failed",
				zap.Int64("check_id", cfg.ID), zap.Error(err))
		}
	}
	return nil
}

// execute runs the plugin under a timeout and panic guard. A panicking
// plugin produces a synthetic failure instead of taking the process
// down.
func (e *Executor) execute(ctx context.Context, cfg *models.CheckConfiguration, site *models.Site) (outcome Outcome) {
	check, err := e.registry.Get(cfg.CheckType)
	if err != nil {
		return failure(err.Error(), -1, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, executionCap)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("check panicked",
				zap.Int64("check_id", cfg.ID),
				zap.String("check_type", cfg.CheckType),
				zap.Any("panic", r))
			outcome = failure(fmt.Sprintf("check panicked: %v", r), -1, nil)
		}
	}()
	return check.Execute(ctx, site.URL, cfg.Configuration)
}
