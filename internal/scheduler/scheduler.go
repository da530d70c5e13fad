// Package scheduler runs check configurations on their configured
// intervals, one ticker goroutine per check.
package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitewatch/internal/checks"
)

// Runner executes one check configuration. The executor satisfies it.
type Runner interface {
	Run(ctx context.Context, configID int64) error
}

type entry struct {
	interval time.Duration
	cancel   context.CancelFunc
	paused   bool
}

// Scheduler owns one ticker goroutine per scheduled check.
type Scheduler struct {
	db     *sql.DB
	runner Runner
	logger *zap.Logger

	mu      sync.Mutex
	entries map[int64]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a scheduler. Nothing runs until Schedule or Resync is
// called.
func New(db *sql.DB, runner Runner, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		db:      db,
		runner:  runner,
		logger:  logger,
		entries: make(map[int64]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule starts (or restarts) the ticker for a check configuration.
// An existing schedule for the same ID is replaced.
func (s *Scheduler) Schedule(configID int64, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(configID)

	ctx, cancel := context.WithCancel(s.ctx)
	s.entries[configID] = &entry{interval: interval, cancel: cancel}

	s.wg.Add(1)
	go s.loop(ctx, configID, interval)

	s.logger.Info("check scheduled",
		zap.Int64("check_id", configID),
		zap.Duration("interval", interval))
}

// Unschedule stops and forgets the ticker for a check configuration.
// Unknown IDs are a no-op.
func (s *Scheduler) Unschedule(configID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLocked(configID) {
		s.logger.Info("check unscheduled", zap.Int64("check_id", configID))
	}
}

// Pause stops the ticker but keeps the schedule so Resume can restart
// it with the same interval.
func (s *Scheduler) Pause(configID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[configID]
	if !ok || e.paused {
		return
	}
	e.cancel()
	e.paused = true
	s.logger.Info("check paused", zap.Int64("check_id", configID))
}

// Resume restarts a paused check's ticker.
func (s *Scheduler) Resume(configID int64) {
	s.mu.Lock()
	e, ok := s.entries[configID]
	if !ok || !e.paused {
		s.mu.Unlock()
		return
	}
	interval := e.interval
	s.mu.Unlock()
	s.Schedule(configID, interval)
}

// RunOnce executes a check immediately without touching its schedule.
func (s *Scheduler) RunOnce(ctx context.Context, configID int64) error {
	return s.runner.Run(ctx, configID)
}

// IsScheduled reports whether a check has an active (non-paused)
// ticker.
func (s *Scheduler) IsScheduled(configID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[configID]
	return ok && !e.paused
}

// Resync reconciles the schedule with the database: every enabled
// check on an active site gets a ticker, everything else is dropped.
// Called at startup and after bulk edits.
func (s *Scheduler) Resync() error {
	configs, err := checks.ListEnabledConfigurations(s.db)
	if err != nil {
		return err
	}

	want := make(map[int64]time.Duration, len(configs))
	for _, cfg := range configs {
		want[cfg.ID] = time.Duration(cfg.IntervalSeconds) * time.Second
	}

	s.mu.Lock()
	var drop []int64
	for id := range s.entries {
		if _, ok := want[id]; !ok {
			drop = append(drop, id)
		}
	}
	for _, id := range drop {
		s.stopLocked(id)
	}
	s.mu.Unlock()

	for id, interval := range want {
		s.mu.Lock()
		e, ok := s.entries[id]
		unchanged := ok && !e.paused && e.interval == interval
		s.mu.Unlock()
		if !unchanged {
			s.Schedule(id, interval)
		}
	}

	s.logger.Info("schedule resynced",
		zap.Int("scheduled", len(want)), zap.Int("dropped", len(drop)))
	return nil
}

// Stop cancels every ticker and waits for in-flight runs started by
// them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	s.entries = make(map[int64]*entry)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, configID int64, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First run happens right away so a new check does not sit idle
	// for a full interval.
	s.runSafely(ctx, configID)

	for {
		select {
		case <-ticker.C:
			s.runSafely(ctx, configID)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runSafely(ctx context.Context, configID int64) {
	if err := s.runner.Run(ctx, configID); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled run failed",
			zap.Int64("check_id", configID), zap.Error(err))
	}
}

// stopLocked cancels an entry's ticker and removes it. Caller holds mu.
func (s *Scheduler) stopLocked(configID int64) bool {
	e, ok := s.entries[configID]
	if !ok {
		return false
	}
	e.cancel()
	delete(s.entries, configID)
	return true
}
