// Package retry provides a reusable backoff policy for fallible operations.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/inkdex/search-sync/internal/logging"
)

var logger = logging.New()

// Policy describes a bounded exponential backoff. The delay before attempt n
// (n >= 2) is min(BaseDelay * Multiplier^(n-2), Cap).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Cap         time.Duration
}

// Default is the policy used by the index client: three attempts with delays
// of 1s and 2s between them.
var Default = Policy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	Multiplier:  2,
	Cap:         10 * time.Second,
}

// delay returns the sleep before the given 1-based attempt.
func (p Policy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-2)))
	if p.Cap > 0 && d > p.Cap {
		d = p.Cap
	}
	return d
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do fails immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do invokes op until it succeeds, fails permanently, or the policy's attempt
// budget is exhausted, sleeping between attempts. It knows nothing about what
// it is retrying beyond the label used for logging. The returned error is the
// last one observed.
func Do(ctx context.Context, p Policy, label string, op func(context.Context) error) error {
	return do(ctx, p, label, op, time.Sleep)
}

func do(ctx context.Context, p Policy, label string, op func(context.Context) error, sleep func(time.Duration)) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			sleep(p.delay(attempt))
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			logger.ErrorContext(ctx, "Operation failed permanently",
				slog.String("operation", label),
				slog.Int("attempt", attempt),
				slog.String("error", perm.err.Error()),
			)
			return perm.err
		}

		lastErr = err
		if attempt < maxAttempts {
			logger.WarnContext(ctx, "Operation failed, retrying",
				slog.String("operation", label),
				slog.Int("attempt", attempt),
				slog.Duration("next_delay", p.delay(attempt+1)),
				slog.String("error", err.Error()),
			)
		}
	}

	logger.ErrorContext(ctx, "Operation failed after exhausting retries",
		slog.String("operation", label),
		slog.Int("attempts", maxAttempts),
		slog.String("error", lastErr.Error()),
	)
	return lastErr
}
