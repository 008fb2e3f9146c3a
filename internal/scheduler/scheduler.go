package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pricesync-service/internal/models"
	"pricesync-service/internal/syncerr"
	"pricesync-service/internal/util"

	"go.uber.org/zap"
)

const defaultTickInterval = 60 * time.Second

// ConfigSource lists the stores the scheduler evaluates each tick.
type ConfigSource interface {
	GetStoreConfig(ctx context.Context, id string) (*models.StoreConfig, error)
	GetEnabledStoreConfigs(ctx context.Context) ([]models.StoreConfig, error)
}

// OutcomeSource reads the latest run outcome used for due computation.
type OutcomeSource interface {
	GetLatestOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error)
}

// Syncer runs a full reconciliation for one store.
type Syncer interface {
	SyncStore(ctx context.Context, cfg models.StoreConfig) (*models.SyncOutcome, error)
}

// SchedulerService launches periodic sync runs. Each store runs on its own
// configured interval, with at most one run in flight per store at a time.
type SchedulerService struct {
	configs  ConfigSource
	outcomes OutcomeSource
	syncer   Syncer
	guard    *runGuard
	tick     time.Duration
	now      func() time.Time
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(configs ConfigSource, outcomes OutcomeSource, syncer Syncer, tick time.Duration) *SchedulerService {
	if tick <= 0 {
		tick = defaultTickInterval
	}
	return &SchedulerService{
		configs:  configs,
		outcomes: outcomes,
		syncer:   syncer,
		guard:    newRunGuard(),
		tick:     tick,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Run evaluates all stores immediately, then on every tick, until ctx is
// cancelled. It returns after all in-flight runs have finished.
func (s *SchedulerService) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", zap.Duration("tick", s.tick))

	s.evaluateAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping, waiting for in-flight runs")
			s.wg.Wait()
			return
		case <-ticker.C:
			s.evaluateAll(ctx)
		}
	}
}

// TriggerNow launches a sync for storeID outside the regular schedule.
// It fails when the store is unknown, disabled, or already syncing.
func (s *SchedulerService) TriggerNow(ctx context.Context, storeID string) error {
	cfg, err := s.configs.GetStoreConfig(ctx, storeID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return syncerr.Configuration("scheduler.trigger", fmt.Sprintf("unknown store %q", storeID))
	}
	if !cfg.Enabled {
		return syncerr.Configuration("scheduler.trigger", fmt.Sprintf("store %q is disabled", storeID))
	}
	if !s.guard.TryAcquire(cfg.ID) {
		return syncerr.Validation("scheduler.trigger", fmt.Sprintf("sync already running for store %q", storeID))
	}
	s.launch(*cfg)
	return nil
}

// IsRunning reports whether a sync is currently in flight for storeID.
func (s *SchedulerService) IsRunning(storeID string) bool {
	return s.guard.IsActive(storeID)
}

// evaluateAll walks every enabled store once. A failure for one store never
// stops the evaluation of the rest.
func (s *SchedulerService) evaluateAll(ctx context.Context) {
	stores, err := s.configs.GetEnabledStoreConfigs(ctx)
	if err != nil {
		s.logger.Error("Failed to list enabled stores", zap.Error(err))
		return
	}

	for _, cfg := range stores {
		due, err := s.isDue(ctx, cfg)
		if err != nil {
			s.logger.Error("Failed to compute due time",
				zap.String("store_id", cfg.ID), zap.Error(err))
			continue
		}
		if !due {
			util.SchedulerRunsSkippedTotal.WithLabelValues("not_due").Inc()
			continue
		}
		if !s.guard.TryAcquire(cfg.ID) {
			util.SchedulerRunsSkippedTotal.WithLabelValues("active_run").Inc()
			s.logger.Debug("Skipping store with active run", zap.String("store_id", cfg.ID))
			continue
		}
		s.launch(cfg)
	}
}

// isDue reports whether cfg's interval has elapsed since its last run started.
// A store with no recorded run is immediately due.
func (s *SchedulerService) isDue(ctx context.Context, cfg models.StoreConfig) (bool, error) {
	last, err := s.outcomes.GetLatestOutcome(ctx, cfg.ID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	interval := time.Duration(cfg.SyncIntervalMinutes) * time.Minute
	return !last.StartedAt.Add(interval).After(s.now()), nil
}

// launch runs the sync asynchronously. The run context is detached from the
// caller's: a run is never cancelled mid-flight, so shutdown and expiring
// request contexts drain in-flight runs to finalization. The guard slot is
// released whatever the run's outcome.
func (s *SchedulerService) launch(cfg models.StoreConfig) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.guard.Release(cfg.ID)

		s.logger.Info("Launching sync run", zap.String("store_id", cfg.ID))
		if _, err := s.syncer.SyncStore(context.Background(), cfg); err != nil {
			s.logger.Error("Sync run failed",
				zap.String("store_id", cfg.ID), zap.Error(err))
		}
	}()
}
