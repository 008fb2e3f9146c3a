package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pricesync-service/internal/models"
	"pricesync-service/internal/retry"
	"pricesync-service/internal/syncerr"
	"pricesync-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxPages guards pagination loops against servers that keep reporting a
// next page.
const maxPages = 1000

// ErrEndpointUnavailable marks a 404/410 from the sub-account endpoints.
// Only this condition triggers the flat-feed fallback; auth and transient
// failures surface so outages are not masked.
var ErrEndpointUnavailable = errors.New("feed endpoint unavailable")

// Client fetches authoritative prices from the pricing feed service.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	policy       retry.Policy
	logger       *zap.Logger

	// One client is shared by every store run, so the token is guarded.
	mu    sync.Mutex
	token string
}

// NewClient creates a feed client. Authenticate must be called before
// FetchAllRecords.
func NewClient(baseURL, clientID, clientSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		policy:       retry.DefaultPolicy(),
		logger:       util.GetLogger(),
	}
}

// SetRetryPolicy overrides the backoff policy, used by tests.
func (c *Client) SetRetryPolicy(p retry.Policy) {
	c.policy = p
}

type authRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
}

type account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type accountsResponse struct {
	Accounts []account `json:"accounts"`
}

type feedItem struct {
	ID          string      `json:"id"`
	SKU         string      `json:"sku"`
	Name        string      `json:"name"`
	Price       json.Number `json:"price"`
	Currency    string      `json:"currency"`
	LastUpdated time.Time   `json:"last_updated"`
}

type itemsPage struct {
	Items      []feedItem `json:"items"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
}

// Authenticate exchanges the long-lived client credentials for a bearer
// token. Failure is fatal and never retried.
func (c *Client) Authenticate(ctx context.Context) error {
	body, err := json.Marshal(authRequest{ClientID: c.clientID, ClientSecret: c.clientSecret})
	if err != nil {
		return fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.Authentication("feed.authenticate", fmt.Sprintf("token exchange failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return syncerr.Authentication("feed.authenticate",
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil || auth.AccessToken == "" {
		return syncerr.Authentication("feed.authenticate", "token response missing access_token")
	}

	c.setToken(auth.AccessToken)
	c.logger.Info("Feed client authenticated")
	return nil
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// FetchAllRecords lists sub-accounts and aggregates each account's paginated
// items. When the sub-account endpoints are absent (404/410) it falls back to
// the flat item feed. Invalid records are dropped with a warning.
func (c *Client) FetchAllRecords(ctx context.Context) ([]models.FeedRecord, error) {
	if c.currentToken() == "" {
		return nil, syncerr.Authentication("feed.fetch", "client not authenticated")
	}

	start := time.Now()
	defer func() {
		util.FeedFetchLatency.Observe(time.Since(start).Seconds())
	}()

	accounts, err := c.listAccounts(ctx)
	if err != nil {
		if errors.Is(err, ErrEndpointUnavailable) {
			c.logger.Warn("Sub-account endpoint unavailable, falling back to flat feed")
			return c.fetchPaged(ctx, "/items")
		}
		return nil, err
	}

	var all []models.FeedRecord
	for _, acct := range accounts {
		records, err := c.fetchPaged(ctx, "/accounts/"+acct.ID+"/items")
		if err != nil {
			if errors.Is(err, ErrEndpointUnavailable) {
				c.logger.Warn("Per-account item endpoint unavailable, falling back to flat feed",
					zap.String("account_id", acct.ID))
				return c.fetchPaged(ctx, "/items")
			}
			return nil, err
		}
		all = append(all, records...)
	}

	c.logger.Info("Feed fetch completed",
		zap.Int("accounts", len(accounts)),
		zap.Int("records", len(all)))
	return all, nil
}

func (c *Client) listAccounts(ctx context.Context) ([]account, error) {
	var resp accountsResponse
	err := retry.Do(ctx, c.policy, "feed.accounts", c.logger, func(ctx context.Context) error {
		return c.getJSON(ctx, "/accounts", &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (c *Client) fetchPaged(ctx context.Context, path string) ([]models.FeedRecord, error) {
	var records []models.FeedRecord

	for page := 1; page <= maxPages; page++ {
		var resp itemsPage
		err := retry.Do(ctx, c.policy, "feed.items", c.logger, func(ctx context.Context) error {
			return c.getJSON(ctx, fmt.Sprintf("%s?page=%d", path, page), &resp)
		})
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			record, ok := c.validateItem(item)
			if !ok {
				continue
			}
			records = append(records, record)
		}

		if resp.TotalPages == 0 || page >= resp.TotalPages {
			break
		}
	}

	util.FeedRecordsFetchedTotal.Add(float64(len(records)))
	return records, nil
}

// validateItem converts a raw feed item, dropping records without an id or
// with a non-numeric price. Dropped records never block the batch.
func (c *Client) validateItem(item feedItem) (models.FeedRecord, bool) {
	if item.ID == "" {
		c.logger.Warn("Dropping feed record without id", zap.String("sku", item.SKU))
		util.FeedRecordsDroppedTotal.Inc()
		return models.FeedRecord{}, false
	}

	price, err := decimal.NewFromString(item.Price.String())
	if err != nil {
		c.logger.Warn("Dropping feed record with non-numeric price",
			zap.String("id", item.ID),
			zap.String("price", item.Price.String()))
		util.FeedRecordsDroppedTotal.Inc()
		return models.FeedRecord{}, false
	}

	return models.FeedRecord{
		ID:          item.ID,
		SKU:         item.SKU,
		Name:        item.Name,
		Price:       price,
		Currency:    item.Currency,
		LastUpdated: item.LastUpdated,
	}, true
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.currentToken())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerr.Network("feed.fetch", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return syncerr.Network("feed.fetch", "failed to decode response", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &syncerr.Error{
			Kind:    syncerr.KindValidation,
			Op:      "feed.fetch",
			Message: fmt.Sprintf("endpoint %s returned %d", path, resp.StatusCode),
			Err:     ErrEndpointUnavailable,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return syncerr.RateLimit("feed.fetch", "feed rate limit exceeded", retryAfter(resp))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return syncerr.Authentication("feed.fetch",
			fmt.Sprintf("feed returned %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return syncerr.Network("feed.fetch",
			fmt.Sprintf("feed returned %d", resp.StatusCode), nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return syncerr.Validation("feed.fetch",
			fmt.Sprintf("feed returned %d: %s", resp.StatusCode, string(body)))
	}
}

// retryAfter parses a Retry-After header given in seconds, zero when absent.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
