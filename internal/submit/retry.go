package submit

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tempospam/engine/internal/config"
)

// rateLimitFallbackDelay applies to a throttled response when neither the
// Retry-After header nor cfg.RateLimitDelay gives a delay.
const rateLimitFallbackDelay = 2 * time.Second

// calculateDelay mirrors RetryConfig::calculate_delay: exponential backoff
// from BaseDelay, capped at MaxDelay, with a uniform jitter multiplier.
func calculateDelay(cfg config.RetryConfig, attempt int, rng *rand.Rand) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.ExponentialBase, float64(attempt))
	if max := float64(cfg.MaxDelay); delay > max {
		delay = max
	}
	if cfg.JitterMax > 0 {
		factor := cfg.JitterMin + rng.Float64()*(cfg.JitterMax-cfg.JitterMin)
		delay *= factor
	}
	return time.Duration(delay)
}

// WithRetry runs op up to cfg.MaxRetries+1 times with jittered exponential
// backoff between attempts, returning the first success or the last
// error. It stops early if ctx is done or shouldRetry returns false for
// the most recent error. A rate-limited failure does not follow the
// exponential curve: it waits out the server's Retry-After when the error
// carries one, and cfg.RateLimitDelay (default 2s) otherwise.
func WithRetry(ctx context.Context, cfg config.RetryConfig, shouldRetry func(error) bool, op func(attempt int) error) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			return lastErr
		}

		delay := calculateDelay(cfg, attempt, rng)
		if Classify(lastErr, HTTPStatusOf(lastErr)) == RateLimited {
			delay = rateLimitFallbackDelay
			if cfg.RateLimitDelay > 0 {
				delay = cfg.RateLimitDelay
			}
			if d := RetryAfterOf(lastErr); d > 0 {
				delay = d
			}
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
