package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies a supported merchant storefront.
type Platform string

const (
	PlatformWooCommerce Platform = "woocommerce"
	PlatformShopify     Platform = "shopify"
)

// FeedRecord is a priced item as reported by the pricing feed service.
type FeedRecord struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	LastUpdated time.Time       `json:"last_updated"`
}

// ListingRecord is one sellable unit on a merchant platform. ProductID is the
// parent product id and is only set by variant-based platforms that need it
// for the update call.
type ListingRecord struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id,omitempty"`
	SKU       string `json:"sku"`
	Price     string `json:"price"`
}

// MatchedPair correlates one feed record with one platform listing.
type MatchedPair struct {
	Feed       FeedRecord
	Listing    ListingRecord
	Confidence float64
}

// MatchResult classifies every feed record exactly once.
type MatchResult struct {
	Matched  []MatchedPair
	Unlisted []FeedRecord
}

// StoreConfig describes one merchant store. Credentials is an encrypted blob
// owned by the config store; the engine never decrypts it directly.
type StoreConfig struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Platform            Platform  `db:"platform" json:"platform"`
	SyncIntervalMinutes int       `db:"sync_interval_minutes" json:"sync_interval_minutes"`
	Enabled             bool      `db:"enabled" json:"enabled"`
	Credentials         []byte    `db:"credentials" json:"-"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// WooCommerceCredentials authenticate against a WooCommerce REST API.
type WooCommerceCredentials struct {
	BaseURL string `json:"base_url"`
	Key     string `json:"key"`
	Secret  string `json:"secret"`
}

// ShopifyCredentials authenticate against a Shopify admin API.
type ShopifyCredentials struct {
	ShopDomain  string `json:"shop_domain"`
	AccessToken string `json:"access_token"`
}

// Credentials is the decrypted credential set for one store, populated for
// exactly the store's platform.
type Credentials struct {
	WooCommerce *WooCommerceCredentials `json:"woocommerce,omitempty"`
	Shopify     *ShopifyCredentials     `json:"shopify,omitempty"`
}

// Run statuses
const (
	RunStatusInProgress = "in_progress"
	RunStatusSuccess    = "success"
	RunStatusPartial    = "partial"
	RunStatusFailed     = "failed"
)

// SyncError records one failed item within a run.
type SyncError struct {
	ItemID  string `json:"item_id"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// SyncOutcome is the persisted result of one sync run for one store.
type SyncOutcome struct {
	RunID      string      `json:"run_id"`
	StoreID    string      `json:"store_id"`
	Repriced   int         `json:"repriced_count"`
	Pending    int         `json:"pending_count"`
	Unlisted   int         `json:"unlisted_count"`
	Errors     []SyncError `json:"errors"`
	Status     string      `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// DeriveStatus computes the terminal status from the per-item tallies.
// Every attempted item failing means the run failed; some failing means
// partial; no errors means success even when everything was unlisted.
func (o *SyncOutcome) DeriveStatus() string {
	attempted := o.Repriced + o.Pending
	switch {
	case len(o.Errors) == 0:
		return RunStatusSuccess
	case len(o.Errors) >= attempted:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// Product statuses
const (
	ProductStatusRepriced = "repriced"
	ProductStatusPending  = "pending"
	ProductStatusUnlisted = "unlisted"
)

// ProductStatusEntry is the per (store, platform product id) classification,
// overwritten on every sync run touching the same product.
type ProductStatusEntry struct {
	StoreID      string          `db:"store_id" json:"store_id"`
	ProductID    string          `db:"product_id" json:"product_id"`
	Status       string          `db:"status" json:"status"`
	CurrentPrice decimal.Decimal `db:"current_price" json:"current_price"`
	TargetPrice  decimal.Decimal `db:"target_price" json:"target_price"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	LastAttempt  time.Time       `db:"last_attempt" json:"last_attempt"`
	LastSuccess  *time.Time      `db:"last_success" json:"last_success,omitempty"`
}

// AuditEntry records one price change for the change-history log.
type AuditEntry struct {
	StoreID   string    `db:"store_id" json:"store_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Action    string    `db:"action" json:"action"`
	OldValue  string    `db:"old_value" json:"old_value"`
	NewValue  string    `db:"new_value" json:"new_value"`
	Details   string    `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
