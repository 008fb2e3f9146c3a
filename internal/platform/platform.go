package platform

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pricesync-service/internal/models"
	"pricesync-service/internal/syncerr"

	"github.com/shopspring/decimal"
)

// Client is the shared storefront contract. Authenticate must succeed before
// any other call; unauthenticated calls fail fast.
type Client interface {
	Authenticate(ctx context.Context) error
	GetAllProducts(ctx context.Context) ([]models.ListingRecord, error)
	UpdatePrice(ctx context.Context, target UpdateTarget, newPrice decimal.Decimal) error
}

// UpdateTarget identifies one sellable unit to reprice. ProductID is the
// parent product id, required by variant-based platforms.
type UpdateTarget struct {
	ProductID string
	ListingID string
}

// TargetFor builds the update target for a matched listing.
func TargetFor(listing models.ListingRecord) UpdateTarget {
	return UpdateTarget{ProductID: listing.ProductID, ListingID: listing.ID}
}

// NewClient builds the adapter for the store's platform from its decrypted
// credentials. An unsupported platform or a credential shape mismatch is a
// configuration error.
func NewClient(cfg models.StoreConfig, creds models.Credentials, timeout time.Duration) (Client, error) {
	switch cfg.Platform {
	case models.PlatformWooCommerce:
		if creds.WooCommerce == nil {
			return nil, syncerr.Configuration("platform.new",
				fmt.Sprintf("store %s: missing woocommerce credentials", cfg.ID))
		}
		return NewWooCommerceClient(*creds.WooCommerce, timeout), nil
	case models.PlatformShopify:
		if creds.Shopify == nil {
			return nil, syncerr.Configuration("platform.new",
				fmt.Sprintf("store %s: missing shopify credentials", cfg.ID))
		}
		return NewShopifyClient(*creds.Shopify, timeout), nil
	default:
		return nil, syncerr.Configuration("platform.new",
			fmt.Sprintf("store %s: unsupported platform %q", cfg.ID, cfg.Platform))
	}
}

// errNotAuthenticated is shared fail-fast behavior for both adapters.
func errNotAuthenticated(op string) error {
	return syncerr.Authentication(op, "client not authenticated")
}

// classifyStatus maps a non-2xx platform response to an error kind.
func classifyStatus(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return syncerr.RateLimit(op, "platform rate limit exceeded", retryAfterHeader(resp))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return syncerr.Authentication(op, fmt.Sprintf("platform returned %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return syncerr.Network(op, fmt.Sprintf("platform returned %d", resp.StatusCode), nil)
	default:
		return syncerr.Validation(op, fmt.Sprintf("platform returned %d", resp.StatusCode))
	}
}

// retryAfterHeader parses a Retry-After given in seconds, zero when absent.
func retryAfterHeader(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
