package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iotguard/guardd/internal/engine"
	"github.com/iotguard/guardd/internal/logger"
)

// HousekeepingService runs the periodic sweep that keeps memory and the
// action log bounded: idle per-source state is evicted (the engine recreates
// it lazily if the source returns) and old action records are pruned.
type HousekeepingService struct {
	engine   *engine.Engine
	actions  *ActionService
	schedule string

	evictAfter time.Duration
	retention  time.Duration

	cron *cron.Cron
}

func NewHousekeepingService(e *engine.Engine, actions *ActionService, schedule string, evictAfter, retention time.Duration) *HousekeepingService {
	return &HousekeepingService{
		engine:     e,
		actions:    actions,
		schedule:   schedule,
		evictAfter: evictAfter,
		retention:  retention,
	}
}

// Start schedules the sweep. Call Stop on shutdown.
func (s *HousekeepingService) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.Sweep); err != nil {
		return fmt.Errorf("schedule housekeeping: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *HousekeepingService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep performs one eviction/prune pass. Exported for tests and for
// triggering a sweep on demand.
func (s *HousekeepingService) Sweep() {
	now := time.Now()

	evicted := s.engine.EvictIdle(now.Add(-s.evictAfter))

	pruned, err := s.actions.Prune(now.Add(-s.retention))
	if err != nil {
		logger.Log().WithError(err).Warn("failed to prune action records")
	}

	if evicted > 0 || pruned > 0 {
		logger.WithFields(map[string]interface{}{
			"evicted_sources": evicted,
			"pruned_records":  pruned,
		}).Info("housekeeping sweep")
	}
}
