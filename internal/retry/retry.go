package retry

import (
	"context"
	"time"

	"pricesync-service/internal/syncerr"

	"go.uber.org/zap"
)

// Policy controls exponential backoff between attempts.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultPolicy matches the fetch policy used by all outbound clients.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		Multiplier:   3,
		MaxDelay:     30 * time.Second,
	}
}

// Do runs fn up to p.MaxAttempts times, sleeping with exponential backoff
// between attempts. Only retryable errors (network, rate limit) are
// re-attempted; a server-supplied retry-after hint overrides the computed
// delay. Authentication, validation and other client errors surface
// immediately.
func Do(ctx context.Context, p Policy, op string, logger *zap.Logger, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !syncerr.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		if hint := syncerr.RetryAfterHint(lastErr); hint > 0 {
			wait = hint
		}
		if wait > p.MaxDelay {
			wait = p.MaxDelay
		}

		logger.Warn("Retryable failure, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}
