package service

import (
	"context"

	"pricesync-service/internal/models"
	"pricesync-service/internal/platform"
)

// ConfigStore provides store configurations and the credential accessor.
// The engine never decrypts credential blobs itself.
type ConfigStore interface {
	GetStoreConfig(ctx context.Context, id string) (*models.StoreConfig, error)
	GetEnabledStoreConfigs(ctx context.Context) ([]models.StoreConfig, error)
	Credentials(cfg *models.StoreConfig) (models.Credentials, error)
}

// StatusStore persists run progress and per-product outcomes.
type StatusStore interface {
	StartRun(ctx context.Context, outcome *models.SyncOutcome) error
	UpdateProgress(ctx context.Context, storeID, runID string, repriced, pending, unlisted int, lastError string) error
	SaveOutcome(ctx context.Context, outcome *models.SyncOutcome) error
	GetLatestOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error)
	UpsertProductStatus(ctx context.Context, entry *models.ProductStatusEntry) error
}

// AuditSink records price-change history. Sink failures never fail a sync.
type AuditSink interface {
	LogAudit(ctx context.Context, entry *models.AuditEntry) error
}

// Emitter broadcasts fire-and-forget progress events to observers.
type Emitter interface {
	Emit(storeID, eventType, message string, data map[string]any)
}

// FeedClient fetches authoritative prices from the pricing feed.
type FeedClient interface {
	Authenticate(ctx context.Context) error
	FetchAllRecords(ctx context.Context) ([]models.FeedRecord, error)
}

// PlatformClientFactory builds the storefront adapter for a store from its
// decrypted credentials.
type PlatformClientFactory func(cfg models.StoreConfig, creds models.Credentials) (platform.Client, error)
