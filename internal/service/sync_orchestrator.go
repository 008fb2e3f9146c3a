package service

import (
	"context"
	"fmt"
	"time"

	"pricesync-service/internal/matcher"
	"pricesync-service/internal/models"
	"pricesync-service/internal/platform"
	"pricesync-service/internal/syncerr"
	"pricesync-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Run stages, emitted with progress events so observers can follow a run.
const (
	StageStarted          = "started"
	StageFetchingSource   = "fetching_source"
	StageFetchingPlatform = "fetching_platform"
	StageMatching         = "matching"
	StageApplying         = "applying"
	StageFinalized        = "finalized"
)

// defaultPriceEpsilon is the price delta below which no update is issued.
var defaultPriceEpsilon = decimal.RequireFromString("0.01")

// SyncOrchestrator reconciles feed prices against one store's listings and
// applies corrective updates with per-item failure isolation.
type SyncOrchestrator struct {
	configs   ConfigStore
	status    StatusStore
	audit     AuditSink
	emitter   Emitter
	feed      FeedClient
	platforms PlatformClientFactory
	epsilon   decimal.Decimal
	logger    *zap.Logger
}

// NewSyncOrchestrator creates a new sync orchestrator
func NewSyncOrchestrator(
	configs ConfigStore,
	status StatusStore,
	audit AuditSink,
	emitter Emitter,
	feed FeedClient,
	platforms PlatformClientFactory,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		configs:   configs,
		status:    status,
		audit:     audit,
		emitter:   emitter,
		feed:      feed,
		platforms: platforms,
		epsilon:   defaultPriceEpsilon,
		logger:    util.GetLogger(),
	}
}

// SetPriceEpsilon overrides the no-op threshold for price deltas.
func (so *SyncOrchestrator) SetPriceEpsilon(epsilon decimal.Decimal) {
	so.epsilon = epsilon
}

// SyncStore runs one full reconciliation for one store. The returned outcome
// is always non-nil and already persisted; err is non-nil only when the run
// aborted before the apply stage completed normally.
func (so *SyncOrchestrator) SyncStore(ctx context.Context, cfg models.StoreConfig) (*models.SyncOutcome, error) {
	ctx, span := util.StartSpan(ctx, "SyncOrchestrator.SyncStore")
	defer span.End()

	start := time.Now()
	outcome := &models.SyncOutcome{
		RunID:     uuid.New().String(),
		StoreID:   cfg.ID,
		Errors:    []models.SyncError{},
		Status:    models.RunStatusInProgress,
		StartedAt: start,
	}

	// Observers see the run as underway before any fetch begins.
	if err := so.status.StartRun(ctx, outcome); err != nil {
		so.logger.Error("Failed to persist run start", zap.String("store_id", cfg.ID), zap.Error(err))
	}
	so.emitStage(cfg.ID, StageStarted, models.EventTypeSyncStarted,
		fmt.Sprintf("Sync started for %s", cfg.Name))

	defer func() {
		util.SyncRunDuration.Observe(time.Since(start).Seconds())
		util.SyncRunsTotal.WithLabelValues(outcome.Status).Inc()
	}()

	feedRecords, err := so.fetchSource(ctx, cfg)
	if err != nil {
		return outcome, so.abortRun(ctx, outcome, err)
	}

	listings, client, err := so.fetchPlatform(ctx, cfg)
	if err != nil {
		return outcome, so.abortRun(ctx, outcome, err)
	}

	so.emitStage(cfg.ID, StageMatching, models.EventTypeSyncProgress,
		fmt.Sprintf("Matching %d feed records against %d listings", len(feedRecords), len(listings)))
	result := matcher.Match(feedRecords, listings)

	so.emitStage(cfg.ID, StageApplying, models.EventTypeSyncProgress,
		fmt.Sprintf("Applying price updates (%d matched, %d unlisted)", len(result.Matched), len(result.Unlisted)))
	so.applyUpdates(ctx, cfg, client, result, outcome)

	so.finalize(ctx, outcome, outcome.DeriveStatus())
	so.emitStage(cfg.ID, StageFinalized, models.EventTypeSyncCompleted,
		fmt.Sprintf("Sync finished: %d repriced, %d pending, %d unlisted",
			outcome.Repriced, outcome.Pending, outcome.Unlisted))

	so.logger.Info("Sync run completed",
		zap.String("store_id", cfg.ID),
		zap.String("run_id", outcome.RunID),
		zap.String("status", outcome.Status),
		zap.Int("repriced", outcome.Repriced),
		zap.Int("pending", outcome.Pending),
		zap.Int("unlisted", outcome.Unlisted))
	return outcome, nil
}

func (so *SyncOrchestrator) fetchSource(ctx context.Context, cfg models.StoreConfig) ([]models.FeedRecord, error) {
	ctx, span := util.StartSpan(ctx, "SyncOrchestrator.fetchSource")
	defer span.End()

	so.emitStage(cfg.ID, StageFetchingSource, models.EventTypeSyncProgress, "Fetching feed prices")

	if err := so.feed.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("feed authentication failed: %w", err)
	}
	records, err := so.feed.FetchAllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed fetch failed: %w", err)
	}
	return records, nil
}

func (so *SyncOrchestrator) fetchPlatform(ctx context.Context, cfg models.StoreConfig) ([]models.ListingRecord, platform.Client, error) {
	ctx, span := util.StartSpan(ctx, "SyncOrchestrator.fetchPlatform")
	defer span.End()

	so.emitStage(cfg.ID, StageFetchingPlatform, models.EventTypeSyncProgress, "Fetching platform catalog")

	creds, err := so.configs.Credentials(&cfg)
	if err != nil {
		return nil, nil, syncerr.Configuration("sync.credentials", err.Error())
	}
	client, err := so.platforms(cfg, creds)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Authenticate(ctx); err != nil {
		return nil, nil, fmt.Errorf("platform authentication failed: %w", err)
	}
	listings, err := client.GetAllProducts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("platform fetch failed: %w", err)
	}
	return listings, client, nil
}

// applyUpdates walks the match result. One item's failure never aborts the
// run; unlisted feed records are recorded without any platform call.
func (so *SyncOrchestrator) applyUpdates(
	ctx context.Context,
	cfg models.StoreConfig,
	client platform.Client,
	result models.MatchResult,
	outcome *models.SyncOutcome,
) {
	ctx, span := util.StartSpan(ctx, "SyncOrchestrator.applyUpdates")
	defer span.End()

	for _, pair := range result.Matched {
		currentPrice, delta := so.priceDelta(pair)
		if !delta {
			continue
		}
		so.applyOne(ctx, cfg, client, pair, currentPrice, outcome)
	}

	for _, record := range result.Unlisted {
		outcome.Unlisted++
		util.ProductsUnlistedTotal.Inc()
		so.recordProductStatus(ctx, &models.ProductStatusEntry{
			StoreID:     cfg.ID,
			ProductID:   record.ID,
			Status:      models.ProductStatusUnlisted,
			TargetPrice: record.Price,
			LastAttempt: time.Now(),
		})
		so.persistProgress(ctx, outcome)
	}
}

// applyOne attempts a single price update and records its outcome.
func (so *SyncOrchestrator) applyOne(
	ctx context.Context,
	cfg models.StoreConfig,
	client platform.Client,
	pair models.MatchedPair,
	currentPrice decimal.Decimal,
	outcome *models.SyncOutcome,
) {
	now := time.Now()
	target := platform.TargetFor(pair.Listing)

	err := client.UpdatePrice(ctx, target, pair.Feed.Price)
	if err != nil {
		outcome.Pending++
		outcome.Errors = append(outcome.Errors, models.SyncError{
			ItemID:  pair.Listing.ID,
			Message: err.Error(),
			Kind:    string(syncerr.KindOf(err)),
		})
		util.ProductsPendingTotal.Inc()

		so.recordProductStatus(ctx, &models.ProductStatusEntry{
			StoreID:      cfg.ID,
			ProductID:    pair.Listing.ID,
			Status:       models.ProductStatusPending,
			CurrentPrice: currentPrice,
			TargetPrice:  pair.Feed.Price,
			ErrorMessage: err.Error(),
			LastAttempt:  now,
		})
		so.persistProgress(ctx, outcome)

		so.logger.Warn("Price update failed",
			zap.String("store_id", cfg.ID),
			zap.String("listing_id", pair.Listing.ID),
			zap.Error(err))
		so.emitter.Emit(cfg.ID, models.EventTypeItemFailed,
			fmt.Sprintf("Failed to reprice %s", pair.Listing.ID),
			map[string]any{"listing_id": pair.Listing.ID, "error": err.Error()})
		return
	}

	outcome.Repriced++
	util.ProductsRepricedTotal.Inc()

	so.recordProductStatus(ctx, &models.ProductStatusEntry{
		StoreID:      cfg.ID,
		ProductID:    pair.Listing.ID,
		Status:       models.ProductStatusRepriced,
		CurrentPrice: pair.Feed.Price,
		TargetPrice:  pair.Feed.Price,
		LastAttempt:  now,
		LastSuccess:  &now,
	})

	if err := so.audit.LogAudit(ctx, &models.AuditEntry{
		StoreID:   cfg.ID,
		ProductID: pair.Listing.ID,
		Action:    "price_update",
		OldValue:  pair.Listing.Price,
		NewValue:  pair.Feed.Price.String(),
		Details:   fmt.Sprintf("sku=%s confidence=%.1f", pair.Feed.SKU, pair.Confidence),
	}); err != nil {
		// Audit outages never fail a sync.
		so.logger.Error("Failed to write audit entry",
			zap.String("store_id", cfg.ID),
			zap.String("listing_id", pair.Listing.ID),
			zap.Error(err))
	}

	so.persistProgress(ctx, outcome)
	so.emitter.Emit(cfg.ID, models.EventTypeItemRepriced,
		fmt.Sprintf("Repriced %s to %s", pair.Listing.ID, pair.Feed.Price),
		map[string]any{"listing_id": pair.Listing.ID, "price": pair.Feed.Price.String()})
}

// priceDelta parses the listing price and reports whether an update is due.
// An unparsable listing price always warrants an update.
func (so *SyncOrchestrator) priceDelta(pair models.MatchedPair) (decimal.Decimal, bool) {
	current, err := decimal.NewFromString(pair.Listing.Price)
	if err != nil {
		return decimal.Zero, true
	}
	return current, pair.Feed.Price.Sub(current).Abs().GreaterThan(so.epsilon)
}

// abortRun finalizes a run that failed before matching completed. Counts
// accumulated so far are preserved; the outcome carries one synthetic error.
func (so *SyncOrchestrator) abortRun(ctx context.Context, outcome *models.SyncOutcome, cause error) error {
	outcome.Errors = append(outcome.Errors, models.SyncError{
		Message: cause.Error(),
		Kind:    string(syncerr.KindOf(cause)),
	})
	so.finalize(ctx, outcome, models.RunStatusFailed)

	so.logger.Error("Sync run aborted",
		zap.String("store_id", outcome.StoreID),
		zap.String("run_id", outcome.RunID),
		zap.Error(cause))
	so.emitter.Emit(outcome.StoreID, models.EventTypeSyncFailed, cause.Error(), nil)
	return cause
}

func (so *SyncOrchestrator) finalize(ctx context.Context, outcome *models.SyncOutcome, status string) {
	now := time.Now()
	outcome.Status = status
	outcome.FinishedAt = &now

	if err := so.status.SaveOutcome(ctx, outcome); err != nil {
		so.logger.Error("Failed to persist outcome",
			zap.String("store_id", outcome.StoreID),
			zap.String("run_id", outcome.RunID),
			zap.Error(err))
	}
}

func (so *SyncOrchestrator) recordProductStatus(ctx context.Context, entry *models.ProductStatusEntry) {
	if err := so.status.UpsertProductStatus(ctx, entry); err != nil {
		so.logger.Error("Failed to upsert product status",
			zap.String("store_id", entry.StoreID),
			zap.String("product_id", entry.ProductID),
			zap.Error(err))
	}
}

func (so *SyncOrchestrator) persistProgress(ctx context.Context, outcome *models.SyncOutcome) {
	lastError := ""
	if n := len(outcome.Errors); n > 0 {
		lastError = outcome.Errors[n-1].Message
	}
	if err := so.status.UpdateProgress(ctx, outcome.StoreID, outcome.RunID, outcome.Repriced, outcome.Pending, outcome.Unlisted, lastError); err != nil {
		so.logger.Error("Failed to persist progress",
			zap.String("run_id", outcome.RunID),
			zap.Error(err))
	}
}

func (so *SyncOrchestrator) emitStage(storeID, stage, eventType, message string) {
	so.emitter.Emit(storeID, eventType, message, map[string]any{"stage": stage})
}
