// Package retry repeats calls that Discord throttled, waiting exactly as long as the
// API asked before each new attempt. Any other error ends the loop at once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aatumaykin/autodelete/internal/discord"
)

const defaultMaxAttempts = 5

// ErrExhausted is returned once every attempt was rate limited.
var ErrExhausted = errors.New("rate limit retries exhausted")

// Config represents retry configuration.
type Config struct {
	MaxAttempts int             // Total attempts including the first (default: 5)
	Clock       clockwork.Clock // Clock used for waiting (default: real clock)

	// OnRateLimited is called before each wait.
	OnRateLimited func(attempt int, wait time.Duration)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return c
}

// Do calls fn until it succeeds, fails with a non rate-limit error, or MaxAttempts
// consecutive rate limits have been seen.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		wait, limited := discord.RetryAfter(err)
		if !limited {
			return zero, err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRateLimited != nil {
			cfg.OnRateLimited(attempt, wait)
		}
		if err := sleep(ctx, cfg.Clock, wait); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}

// DoErr is Do for calls that only return an error.
func DoErr(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
