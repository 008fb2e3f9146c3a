package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pricesync-service/internal/models"
	"pricesync-service/internal/retry"
	"pricesync-service/internal/syncerr"
	"pricesync-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	wooAPIPrefix = "/wp-json/wc/v3"
	wooPerPage   = 100
	wooMaxPages  = 1000
)

// WooCommerceClient talks to a WooCommerce REST API using key/secret basic
// auth. Product listings paginate by page offset.
type WooCommerceClient struct {
	baseURL    string
	key        string
	secret     string
	httpClient *http.Client
	policy     retry.Policy
	logger     *zap.Logger

	authenticated bool
}

// NewWooCommerceClient creates an unauthenticated WooCommerce adapter.
func NewWooCommerceClient(creds models.WooCommerceCredentials, timeout time.Duration) *WooCommerceClient {
	return &WooCommerceClient{
		baseURL:    creds.BaseURL,
		key:        creds.Key,
		secret:     creds.Secret,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.DefaultPolicy(),
		logger:     util.GetLogger(),
	}
}

// SetRetryPolicy overrides the backoff policy, used by tests.
func (c *WooCommerceClient) SetRetryPolicy(p retry.Policy) {
	c.policy = p
}

type wooProduct struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	SKU          string `json:"sku"`
	RegularPrice string `json:"regular_price"`
	Status       string `json:"status"`
}

type wooVariation struct {
	ID           int64  `json:"id"`
	SKU          string `json:"sku"`
	RegularPrice string `json:"regular_price"`
}

// wooPriceUpdate is the complete update payload: the price field and nothing
// else, so no descriptive attribute can be clobbered.
type wooPriceUpdate struct {
	RegularPrice string `json:"regular_price"`
}

// Authenticate verifies the credentials with one lightweight read call.
func (c *WooCommerceClient) Authenticate(ctx context.Context) error {
	var probe []wooProduct
	err := c.doJSON(ctx, http.MethodGet, "/products?per_page=1", nil, &probe)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.KindAuthentication {
			return err
		}
		return syncerr.Authentication("woocommerce.authenticate",
			fmt.Sprintf("credential check failed: %v", err))
	}

	c.authenticated = true
	c.logger.Info("WooCommerce client authenticated")
	return nil
}

// GetAllProducts paginates the catalog by page offset, stopping at the first
// short page.
func (c *WooCommerceClient) GetAllProducts(ctx context.Context) ([]models.ListingRecord, error) {
	if !c.authenticated {
		return nil, errNotAuthenticated("woocommerce.products")
	}

	var listings []models.ListingRecord
	for page := 1; page <= wooMaxPages; page++ {
		var products []wooProduct
		path := fmt.Sprintf("/products?page=%d&per_page=%d", page, wooPerPage)
		err := retry.Do(ctx, c.policy, "woocommerce.products", c.logger, func(ctx context.Context) error {
			products = nil
			return c.doJSON(ctx, http.MethodGet, path, nil, &products)
		})
		if err != nil {
			return nil, err
		}

		for _, p := range products {
			if p.Type == "variable" {
				variations, err := c.fetchVariations(ctx, p.ID)
				if err != nil {
					return nil, err
				}
				listings = append(listings, variations...)
				continue
			}
			listings = append(listings, models.ListingRecord{
				ID:    strconv.FormatInt(p.ID, 10),
				SKU:   p.SKU,
				Price: p.RegularPrice,
			})
		}

		if len(products) < wooPerPage {
			break
		}
	}

	c.logger.Info("WooCommerce catalog fetched", zap.Int("listings", len(listings)))
	return listings, nil
}

// fetchVariations expands one variable product into per-variation listings.
// Each listing carries the parent product id for the update path.
func (c *WooCommerceClient) fetchVariations(ctx context.Context, productID int64) ([]models.ListingRecord, error) {
	parent := strconv.FormatInt(productID, 10)

	var listings []models.ListingRecord
	for page := 1; page <= wooMaxPages; page++ {
		var variations []wooVariation
		path := fmt.Sprintf("/products/%d/variations?page=%d&per_page=%d", productID, page, wooPerPage)
		err := retry.Do(ctx, c.policy, "woocommerce.variations", c.logger, func(ctx context.Context) error {
			variations = nil
			return c.doJSON(ctx, http.MethodGet, path, nil, &variations)
		})
		if err != nil {
			return nil, err
		}

		for _, v := range variations {
			listings = append(listings, models.ListingRecord{
				ID:        strconv.FormatInt(v.ID, 10),
				ProductID: parent,
				SKU:       v.SKU,
				Price:     v.RegularPrice,
			})
		}

		if len(variations) < wooPerPage {
			break
		}
	}
	return listings, nil
}

// UpdatePrice re-reads the product, then issues an update containing only
// the price field. A target carrying a parent product id addresses a
// variation of a variable product.
func (c *WooCommerceClient) UpdatePrice(ctx context.Context, target UpdateTarget, newPrice decimal.Decimal) error {
	if !c.authenticated {
		return errNotAuthenticated("woocommerce.update")
	}

	listingID, err := strconv.ParseInt(target.ListingID, 10, 64)
	if err != nil || listingID <= 0 {
		return syncerr.Validation("woocommerce.update",
			fmt.Sprintf("invalid product id %q", target.ListingID))
	}
	if newPrice.IsNegative() {
		return syncerr.Validation("woocommerce.update",
			fmt.Sprintf("negative price %s for product %d", newPrice, listingID))
	}

	readPath := fmt.Sprintf("/products/%d", listingID)
	if target.ProductID != "" {
		parentID, err := strconv.ParseInt(target.ProductID, 10, 64)
		if err != nil || parentID <= 0 {
			return syncerr.Validation("woocommerce.update",
				fmt.Sprintf("invalid parent product id %q", target.ProductID))
		}
		readPath = fmt.Sprintf("/products/%d/variations/%d", parentID, listingID)
	}

	// The re-read only confirms the product shape before the write; the
	// update body never carries anything besides the price.
	var current wooProduct
	err = retry.Do(ctx, c.policy, "woocommerce.read", c.logger, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, readPath, nil, &current)
	})
	if err != nil {
		return err
	}

	payload := wooPriceUpdate{RegularPrice: newPrice.StringFixed(2)}
	return retry.Do(ctx, c.policy, "woocommerce.update", c.logger, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPut, readPath, payload, nil)
	})
}

func (c *WooCommerceClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	op := "woocommerce." + method

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+wooAPIPrefix+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.key, c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	util.PlatformRequestLatency.WithLabelValues("woocommerce", method).Observe(time.Since(start).Seconds())
	if err != nil {
		util.PlatformRequestsTotal.WithLabelValues("woocommerce", method, "error").Inc()
		return syncerr.Network(op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		util.PlatformRequestsTotal.WithLabelValues("woocommerce", method, strconv.Itoa(resp.StatusCode)).Inc()
		return classifyStatus(op, resp)
	}
	util.PlatformRequestsTotal.WithLabelValues("woocommerce", method, "ok").Inc()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return syncerr.Network(op, "failed to decode response", err)
	}
	return nil
}
