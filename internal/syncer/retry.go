package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrPermanent wraps failures that must not be retried or queued.
//
// Check with errors.Is:
//
//	if errors.Is(err, syncer.ErrPermanent) {
//	    // surface to the user, do not enqueue
//	}
var ErrPermanent = errors.New("permanent failure")

// RetryConfig controls the retry executor's backoff curve.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential curve.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the production retry policy.
// Tests override the delays to sub-second values.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Retrier executes a single remote operation with bounded exponential
// backoff. Fatal errors propagate immediately wrapped in ErrPermanent so
// callers can skip queueing; all other classes are retried, and exhausting
// the budget surfaces the last error as an ordinary retryable-looking
// failure for the caller to queue.
type Retrier struct {
	cfg    RetryConfig
	logger *log.Logger
}

// NewRetrier creates a retry executor with the given policy.
// If logger is nil, logging is suppressed.
func NewRetrier(cfg RetryConfig, logger *log.Logger) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return &Retrier{cfg: cfg, logger: logger}
}

// Backoff returns the delay before retry number attempt (0-based):
// min(base * 2^attempt, cap). The queue drain reuses this curve for
// scheduling nextRetryAt.
func (r *Retrier) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := r.cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	if delay > r.cfg.MaxDelay {
		return r.cfg.MaxDelay
	}
	return delay
}

// Do executes op, retrying on non-fatal failures with exponential backoff.
// The label names the operation in logs and wrapped errors.
func (r *Retrier) Do(ctx context.Context, label string, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.Backoff(attempt - 1)
			r.logf("%s: attempt %d/%d failed (%v), retrying in %s",
				label, attempt, r.cfg.MaxRetries, lastErr, delay)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w", label, ctx.Err())
			case <-timer.C:
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if Classify(err) == ClassFatal {
			return fmt.Errorf("%s: %w: %w", label, ErrPermanent, err)
		}
	}

	// Exhausted retries. The caller decides whether to queue for later.
	return fmt.Errorf("%s: retries exhausted: %w", label, lastErr)
}

func (r *Retrier) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
