package service

import (
	"context"

	"pricesync-service/internal/models"
	"pricesync-service/internal/redisclient"
	"pricesync-service/internal/util"

	"go.uber.org/zap"
)

// CachedStatusStore decorates a StatusStore with a redis hot path: live
// progress counters and the latest outcome are mirrored into the cache so
// dashboard reads skip the database. Cache failures are logged and
// swallowed; the database stays authoritative.
type CachedStatusStore struct {
	db     StatusStore
	cache  *redisclient.Client
	logger *zap.Logger
}

// NewCachedStatusStore creates a new cached status store
func NewCachedStatusStore(db StatusStore, cache *redisclient.Client) *CachedStatusStore {
	return &CachedStatusStore{
		db:     db,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

func (cs *CachedStatusStore) StartRun(ctx context.Context, outcome *models.SyncOutcome) error {
	if err := cs.cache.SetProgress(ctx, outcome.StoreID, 0, 0, 0, ""); err != nil {
		cs.logger.Warn("Failed to reset cached progress", zap.String("store_id", outcome.StoreID), zap.Error(err))
	}
	if err := cs.db.StartRun(ctx, outcome); err != nil {
		return err
	}
	// Observers polling the cache see the run underway immediately.
	if err := cs.cache.CacheOutcome(ctx, outcome); err != nil {
		cs.logger.Warn("Failed to cache run start", zap.String("store_id", outcome.StoreID), zap.Error(err))
	}
	return nil
}

func (cs *CachedStatusStore) UpdateProgress(ctx context.Context, storeID, runID string, repriced, pending, unlisted int, lastError string) error {
	if err := cs.cache.SetProgress(ctx, storeID, repriced, pending, unlisted, lastError); err != nil {
		cs.logger.Warn("Failed to cache progress", zap.String("store_id", storeID), zap.Error(err))
	}
	return cs.db.UpdateProgress(ctx, storeID, runID, repriced, pending, unlisted, lastError)
}

func (cs *CachedStatusStore) SaveOutcome(ctx context.Context, outcome *models.SyncOutcome) error {
	if err := cs.db.SaveOutcome(ctx, outcome); err != nil {
		return err
	}
	if err := cs.cache.CacheOutcome(ctx, outcome); err != nil {
		cs.logger.Warn("Failed to cache outcome", zap.String("store_id", outcome.StoreID), zap.Error(err))
	}
	if err := cs.cache.ClearProgress(ctx, outcome.StoreID); err != nil {
		cs.logger.Warn("Failed to clear cached progress", zap.String("store_id", outcome.StoreID), zap.Error(err))
	}
	return nil
}

// GetLatestOutcome prefers the cache and falls back to the database.
func (cs *CachedStatusStore) GetLatestOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error) {
	cached, err := cs.cache.GetCachedOutcome(ctx, storeID)
	if err != nil {
		cs.logger.Warn("Cached outcome read failed, falling back to DB",
			zap.String("store_id", storeID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}
	return cs.db.GetLatestOutcome(ctx, storeID)
}

func (cs *CachedStatusStore) UpsertProductStatus(ctx context.Context, entry *models.ProductStatusEntry) error {
	return cs.db.UpsertProductStatus(ctx, entry)
}

// LiveProgress returns the in-flight tallies for a store's current run and
// the most recent per-item failure, zeroes when no run is underway.
func (cs *CachedStatusStore) LiveProgress(ctx context.Context, storeID string) (repriced, pending, unlisted int, lastError string, err error) {
	return cs.cache.GetProgress(ctx, storeID)
}
