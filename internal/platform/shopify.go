package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
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
	shopifyAPIVersion  = "2023-10"
	shopifyPageLimit   = 250
	shopifyMaxPages    = 1000
	shopifyMinInterval = 500 * time.Millisecond
)

// linkNextPattern extracts the page_info cursor from a Link response header,
// e.g. <https://x.myshopify.com/admin/api/2023-10/products.json?page_info=abc&limit=250>; rel="next"
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ShopifyClient talks to a Shopify admin API using an access token. Listings
// are product variants; pagination is cursor-token-based via Link headers,
// and requests are self-throttled to stay under the per-shop rate budget.
type ShopifyClient struct {
	shopDomain  string
	baseURL     string
	accessToken string
	httpClient  *http.Client
	policy      retry.Policy
	throttle    *requestThrottle
	logger      *zap.Logger

	authenticated bool
}

// NewShopifyClient creates an unauthenticated Shopify adapter.
func NewShopifyClient(creds models.ShopifyCredentials, timeout time.Duration) *ShopifyClient {
	return &ShopifyClient{
		shopDomain:  creds.ShopDomain,
		baseURL:     "https://" + creds.ShopDomain,
		accessToken: creds.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
		policy:      retry.DefaultPolicy(),
		throttle:    newRequestThrottle(shopifyMinInterval),
		logger:      util.GetLogger(),
	}
}

// SetRetryPolicy overrides the backoff policy, used by tests.
func (c *ShopifyClient) SetRetryPolicy(p retry.Policy) {
	c.policy = p
}

// SetMinRequestInterval overrides the self-throttle interval, used by tests.
func (c *ShopifyClient) SetMinRequestInterval(d time.Duration) {
	c.throttle = newRequestThrottle(d)
}

type shopifyVariant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Price     string `json:"price"`
}

type shopifyProduct struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Variants []shopifyVariant `json:"variants"`
}

type shopifyProductsResponse struct {
	Products []shopifyProduct `json:"products"`
}

type shopifyVariantResponse struct {
	Variant shopifyVariant `json:"variant"`
}

// shopifyPriceUpdate carries only the variant id and its new price.
type shopifyPriceUpdate struct {
	Variant struct {
		ID    int64  `json:"id"`
		Price string `json:"price"`
	} `json:"variant"`
}

func (c *ShopifyClient) apiURL(path string) string {
	return fmt.Sprintf("%s/admin/api/%s%s", c.baseURL, shopifyAPIVersion, path)
}

// Authenticate verifies the token with one lightweight shop read.
func (c *ShopifyClient) Authenticate(ctx context.Context) error {
	var probe struct {
		Shop struct {
			ID int64 `json:"id"`
		} `json:"shop"`
	}
	_, err := c.doJSON(ctx, http.MethodGet, c.apiURL("/shop.json"), nil, &probe)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.KindAuthentication {
			return err
		}
		return syncerr.Authentication("shopify.authenticate",
			fmt.Sprintf("credential check failed: %v", err))
	}

	c.authenticated = true
	c.logger.Info("Shopify client authenticated", zap.String("shop", c.shopDomain))
	return nil
}

// GetAllProducts walks the catalog cursor and flattens every product's
// variants into one listing per sellable unit, each carrying the parent
// product id needed by UpdatePrice.
func (c *ShopifyClient) GetAllProducts(ctx context.Context) ([]models.ListingRecord, error) {
	if !c.authenticated {
		return nil, errNotAuthenticated("shopify.products")
	}

	var listings []models.ListingRecord
	pageURL := c.apiURL(fmt.Sprintf("/products.json?limit=%d", shopifyPageLimit))

	for page := 1; page <= shopifyMaxPages; page++ {
		var resp shopifyProductsResponse
		var next string
		err := retry.Do(ctx, c.policy, "shopify.products", c.logger, func(ctx context.Context) error {
			resp = shopifyProductsResponse{}
			header, err := c.doJSON(ctx, http.MethodGet, pageURL, nil, &resp)
			if err != nil {
				return err
			}
			next = nextPageURL(header)
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, p := range resp.Products {
			for _, v := range p.Variants {
				listings = append(listings, models.ListingRecord{
					ID:        strconv.FormatInt(v.ID, 10),
					ProductID: strconv.FormatInt(p.ID, 10),
					SKU:       v.SKU,
					Price:     v.Price,
				})
			}
		}

		if next == "" {
			break
		}
		pageURL = next
	}

	c.logger.Info("Shopify catalog fetched",
		zap.String("shop", c.shopDomain),
		zap.Int("listings", len(listings)))
	return listings, nil
}

// UpdatePrice validates the target, re-reads the variant to confirm its
// shape, then updates only the price field.
func (c *ShopifyClient) UpdatePrice(ctx context.Context, target UpdateTarget, newPrice decimal.Decimal) error {
	if !c.authenticated {
		return errNotAuthenticated("shopify.update")
	}

	productID, err := strconv.ParseInt(target.ProductID, 10, 64)
	if err != nil || productID <= 0 {
		return syncerr.Validation("shopify.update",
			fmt.Sprintf("invalid product id %q", target.ProductID))
	}
	variantID, err := strconv.ParseInt(target.ListingID, 10, 64)
	if err != nil || variantID <= 0 {
		return syncerr.Validation("shopify.update",
			fmt.Sprintf("invalid variant id %q", target.ListingID))
	}
	if newPrice.IsNegative() {
		return syncerr.Validation("shopify.update",
			fmt.Sprintf("negative price %s for variant %d", newPrice, variantID))
	}

	variantURL := c.apiURL(fmt.Sprintf("/variants/%d.json", variantID))

	var current shopifyVariantResponse
	err = retry.Do(ctx, c.policy, "shopify.read", c.logger, func(ctx context.Context) error {
		_, err := c.doJSON(ctx, http.MethodGet, variantURL, nil, &current)
		return err
	})
	if err != nil {
		return err
	}

	var payload shopifyPriceUpdate
	payload.Variant.ID = variantID
	payload.Variant.Price = newPrice.StringFixed(2)

	return retry.Do(ctx, c.policy, "shopify.update", c.logger, func(ctx context.Context) error {
		_, err := c.doJSON(ctx, http.MethodPut, variantURL, payload, nil)
		return err
	})
}

// doJSON performs one throttled request and returns the response header for
// cursor extraction.
func (c *ShopifyClient) doJSON(ctx context.Context, method, rawURL string, body, out any) (http.Header, error) {
	op := "shopify." + method

	if err := c.throttle.wait(ctx); err != nil {
		return nil, err
	}

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	util.PlatformRequestLatency.WithLabelValues("shopify", method).Observe(time.Since(start).Seconds())
	if err != nil {
		util.PlatformRequestsTotal.WithLabelValues("shopify", method, "error").Inc()
		return nil, syncerr.Network(op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		util.PlatformRequestsTotal.WithLabelValues("shopify", method, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, classifyStatus(op, resp)
	}
	util.PlatformRequestsTotal.WithLabelValues("shopify", method, "ok").Inc()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, syncerr.Network(op, "failed to decode response", err)
		}
	}
	return resp.Header, nil
}

// nextPageURL extracts the rel="next" URL from a Link header, empty when the
// cursor is exhausted.
func nextPageURL(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}
	match := linkNextPattern.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	if _, err := url.Parse(match[1]); err != nil {
		return ""
	}
	return match[1]
}
