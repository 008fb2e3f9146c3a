package platform

import (
	"context"
	"sync"
	"time"
)

// requestThrottle enforces a minimum interval between outbound requests.
// Shopify's REST API budgets roughly two requests per second per shop, so
// the adapter spaces its own calls rather than burning the retry budget on
// 429 responses.
type requestThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func newRequestThrottle(interval time.Duration) *requestThrottle {
	return &requestThrottle{interval: interval}
}

// wait blocks until the minimum interval since the previous call has
// elapsed, or the context is cancelled.
func (t *requestThrottle) wait(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	next := t.last.Add(t.interval)
	if next.Before(now) {
		next = now
	}
	t.last = next
	t.mu.Unlock()

	pause := time.Until(next)
	if pause <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pause):
		return nil
	}
}
