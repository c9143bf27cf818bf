package openai

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// classifyError maps a provider error onto the upstream error taxonomy.
// Only the transient trio (rate limit, timeout, connect) may be retried;
// everything else passes through unchanged or becomes a permanent error.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return err
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return apperrors.Wrap(err, apperrors.ErrCodeUpstreamRateLimit, "provider rate limited")
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403 || apiErr.StatusCode == 404:
			// Bad key, revoked key, or unknown model: retrying cannot help.
			return apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "provider rejected credentials or model")
		case apiErr.StatusCode >= 500:
			return apperrors.Wrap(err, apperrors.ErrCodeUpstreamConnect, "provider server error")
		default:
			return apperrors.Wrap(err, apperrors.ErrCodeExternalService, "provider request failed")
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamTimeout, "provider request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.Wrap(err, apperrors.ErrCodeUpstreamTimeout, "provider request timed out")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamConnect, "provider connection failed")
	}

	return apperrors.Wrap(err, apperrors.ErrCodeExternalService, "provider request failed")
}

// retryPolicy controls the exponential backoff applied to transient
// upstream failures.
type retryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// backoffFor returns the sleep before attempt n (0-based) with full jitter.
func (p retryPolicy) backoffFor(attempt int) time.Duration {
	d := p.InitialBackoff << uint(attempt)
	if d > p.MaxBackoff || d <= 0 {
		d = p.MaxBackoff
	}
	// Full jitter keeps concurrent clients from thundering in lockstep.
	return time.Duration(rand.Int63n(int64(d)) + 1)
}

// withRetry runs fn, retrying only transient upstream errors.  When the
// attempt budget is exhausted the last transient error is converted to
// UpstreamUnavailable; non-transient errors abort immediately.
func withRetry(ctx context.Context, log logging.Logger, policy retryPolicy, metrics RetryMetrics, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := policy.backoffFor(attempt - 1)
			metrics.LLMRetryObserved(op)
			log.Warn("retrying upstream call",
				logging.String("op", op),
				logging.Int("attempt", attempt+1),
				logging.Duration("backoff", wait),
				logging.Err(lastErr),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := classifyError(fn(ctx))
		if err == nil {
			return nil
		}
		if !apperrors.IsTransient(err) {
			return err
		}
		lastErr = err
	}
	return apperrors.UpstreamUnavailable("retries exhausted for " + op).WithCause(lastErr)
}
