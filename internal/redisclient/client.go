package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pricesync-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// outcomeTTL bounds staleness if a cache entry outlives its store.
const outcomeTTL = 24 * time.Hour

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func outcomeKey(storeID string) string {
	return fmt.Sprintf("outcome:%s", storeID)
}

func progressKey(storeID string) string {
	return fmt.Sprintf("progress:%s", storeID)
}

// CacheOutcome stores the latest outcome for fast dashboard reads.
func (c *Client) CacheOutcome(ctx context.Context, outcome *models.SyncOutcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return c.rdb.Set(ctx, outcomeKey(outcome.StoreID), raw, outcomeTTL).Err()
}

// GetCachedOutcome retrieves the cached outcome, nil on a miss.
func (c *Client) GetCachedOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error) {
	raw, err := c.rdb.Get(ctx, outcomeKey(storeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var outcome models.SyncOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil, fmt.Errorf("failed to parse cached outcome: %w", err)
	}
	return &outcome, nil
}

// SetProgress publishes the live tallies of a running sync.
func (c *Client) SetProgress(ctx context.Context, storeID string, repriced, pending, unlisted int, lastError string) error {
	pipe := c.rdb.Pipeline()
	key := progressKey(storeID)
	pipe.HSet(ctx, key, "repriced", repriced, "pending", pending, "unlisted", unlisted, "last_error", lastError)
	pipe.Expire(ctx, key, outcomeTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// GetProgress retrieves the live tallies, zeroes on a miss.
func (c *Client) GetProgress(ctx context.Context, storeID string) (repriced, pending, unlisted int, lastError string, err error) {
	result, err := c.rdb.HGetAll(ctx, progressKey(storeID)).Result()
	if err != nil {
		return 0, 0, 0, "", err
	}

	fmt.Sscanf(result["repriced"], "%d", &repriced)
	fmt.Sscanf(result["pending"], "%d", &pending)
	fmt.Sscanf(result["unlisted"], "%d", &unlisted)
	return repriced, pending, unlisted, result["last_error"], nil
}

// ClearProgress removes the live tallies after a run finalizes.
func (c *Client) ClearProgress(ctx context.Context, storeID string) error {
	return c.rdb.Del(ctx, progressKey(storeID)).Err()
}
